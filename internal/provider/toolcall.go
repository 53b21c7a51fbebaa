package provider

import (
	"fmt"
	"time"
)

var now = time.Now

// ToolCallID returns a synthetic id for a tool invocation the upstream left unnamed.
// index is the invocation's position within the response, which keeps ids unique
// when several calls share a timestamp.
func ToolCallID(functionName string, index int) string {
	return fmt.Sprintf("call_%s_%d_%d", functionName, now().UnixNano(), index)
}
