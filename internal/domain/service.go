package domain

import (
	"net"
	"strconv"
)

// ServiceTypeMultiCapability announces a service exposing both tools and resources.
const ServiceTypeMultiCapability = "multi-capability"

// ServiceTarget is what the discovery registry knows about this process.
type ServiceTarget struct {
	ID          string `json:"id,omitempty"`
	Service     string `json:"serviceName"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	ServiceType string `json:"serviceType"`
}

func (t ServiceTarget) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}
