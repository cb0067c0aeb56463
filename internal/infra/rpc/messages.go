package rpc

import "capd/internal/domain"

type ToolInvokeRequest struct {
	URI       string            `json:"uri"`
	Body      string            `json:"body,omitempty"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

type ToolInvokeReply struct {
	IsError bool     `json:"isError"`
	Content []string `json:"content"`
}

type ResourceRequest struct {
	Location string `json:"location"`
}

type ResourceReply struct {
	IsError bool     `json:"isError"`
	Content []string `json:"content"`
}

type DescribeReply struct {
	Service      string   `json:"service"`
	Address      string   `json:"address"`
	Port         int      `json:"port"`
	ServiceType  string   `json:"serviceType"`
	Registered   bool     `json:"registered"`
	Tools        []string `json:"tools"`
	Resources    []string `json:"resources"`
	Dependencies []string `json:"dependencies,omitempty"`
}

type ProvisionRequest struct {
	URI           string `json:"uri"`
	Configuration string `json:"configuration,omitempty"`
	Secret        string `json:"secret,omitempty"`
}

type ProvisionReply struct {
	ConfigurationURI string `json:"configurationUri,omitempty"`
	SecretURI        string `json:"secretUri,omitempty"`
}

func (r *ToolInvokeRequest) toDomain() domain.InvokeRequest {
	return domain.InvokeRequest{URI: r.URI, Arguments: r.Arguments, Body: r.Body}
}

func (r *ResourceRequest) toDomain() domain.AcquireRequest {
	return domain.AcquireRequest{Location: r.Location}
}
