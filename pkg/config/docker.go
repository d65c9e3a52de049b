package config

import (
	"net"
	"os"
	"sync"
)

const dockerHostAlias = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the process runs inside a Docker container.
// Detection is based on the presence of /.dockerenv. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps localhost to host.docker.internal when running in
// Docker so a containerized connector reaches SQL Server or Kafka on the host.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

// ResolveAddrForDocker applies ResolveHostForDocker to the host part of a
// host:port address such as a Kafka broker.
func ResolveAddrForDocker(addr string) string {
	return resolveAddr(addr, IsRunningInDocker())
}

func resolveHost(host string, inDocker bool) string {
	if inDocker && (host == "localhost" || host == "127.0.0.1") {
		return dockerHostAlias
	}
	return host
}

func resolveAddr(addr string, inDocker bool) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return resolveHost(addr, inDocker)
	}
	return net.JoinHostPort(resolveHost(host, inDocker), port)
}
