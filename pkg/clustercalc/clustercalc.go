// Package clustercalc implements the cluster-calculator collaborator:
// a capability that assigns a request to a cluster name, backed by a
// static host-to-cluster map loaded at boot.
package clustercalc

import (
	"net/http"
	"os"

	"gopkg.in/yaml.v3"
)

// Calculator resolves the cluster a mutation request should be
// attributed to. Calculate receives the inbound HTTP request so
// implementations can key off the Host header, a header set by an
// upstream load balancer, or anything else available on the request.
type Calculator interface {
	Default() string
	Calculate(r *http.Request) string
}

// StaticCalculator implements Calculator from a fixed host → cluster
// map loaded once at boot.
type StaticCalculator struct {
	DefaultCluster string            `yaml:"default"`
	HostClusters   map[string]string `yaml:"hosts"`
}

// LoadStaticCalculator reads a YAML file of the form:
//
//	default: us-east
//	hosts:
//	  svc.us-west.example.com: us-west
func LoadStaticCalculator(path string) (*StaticCalculator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c StaticCalculator
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.HostClusters == nil {
		c.HostClusters = map[string]string{}
	}
	return &c, nil
}

func (c *StaticCalculator) Default() string {
	return c.DefaultCluster
}

func (c *StaticCalculator) Calculate(r *http.Request) string {
	host := r.Host
	if cluster, ok := c.HostClusters[host]; ok {
		return cluster
	}
	return c.DefaultCluster
}
