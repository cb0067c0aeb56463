package domain

import "fmt"

// InvokeRequest asks for a tool to be run against its route.
type InvokeRequest struct {
	URI       string
	Arguments map[string]string
	Body      string
}

// AcquireRequest asks for the current content of a resource.
type AcquireRequest struct {
	Location string
}

// Reply is the transport-neutral outcome of an invoke or acquire call.
type Reply struct {
	IsError bool
	Content []string
}

func SuccessReply(content string) Reply {
	return Reply{Content: []string{content}}
}

func ErrorReply(format string, args ...any) Reply {
	return Reply{IsError: true, Content: []string{fmt.Sprintf(format, args...)}}
}
