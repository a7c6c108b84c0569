package commsutil

import (
	"fmt"
	"strings"
)

// DefaultSubjectPrefix is the first token of every chatops subject.
const DefaultSubjectPrefix = "chatops"

// Subject suffixes served per namespace.
const (
	SuffixList    = "list"
	SuffixExecute = "execute"
	SuffixChat    = "chat"
	SuffixInvoked = "invoked"
)

// BuildListSubject builds the catalog request subject for a namespace.
func BuildListSubject(prefix, namespace string) string {
	return build(prefix, namespace, SuffixList)
}

// BuildExecuteSubject builds the invoke-by-name request subject.
func BuildExecuteSubject(prefix, namespace string) string {
	return build(prefix, namespace, SuffixExecute)
}

// BuildChatSubject builds the free-text chat request subject.
func BuildChatSubject(prefix, namespace string) string {
	return build(prefix, namespace, SuffixChat)
}

// BuildInvokedSubject builds the namespace-wide invocation event subject.
func BuildInvokedSubject(prefix, namespace string) string {
	return build(prefix, namespace, SuffixInvoked)
}

// BuildCommandInvokedSubject builds the per-command invocation event subject.
func BuildCommandInvokedSubject(prefix, namespace, command string) string {
	return fmt.Sprintf("%s.%s", build(prefix, namespace, SuffixInvoked), token(command))
}

func build(prefix, namespace, suffix string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return fmt.Sprintf("%s.%s.%s", prefix, token(namespace), suffix)
}

// token makes s safe as a single subject token.
func token(s string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(s)
}
