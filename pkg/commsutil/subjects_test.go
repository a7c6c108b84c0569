package commsutil

import "testing"

func TestBuildNamespaceSubjects(t *testing.T) {
	tests := []struct {
		name      string
		build     func(prefix, namespace string) string
		prefix    string
		namespace string
		want      string
	}{
		{"list", BuildListSubject, "chatops", "deploy", "chatops.deploy.list"},
		{"execute", BuildExecuteSubject, "chatops", "deploy", "chatops.deploy.execute"},
		{"chat", BuildChatSubject, "bots", "deploy", "bots.deploy.chat"},
		{"invoked", BuildInvokedSubject, "chatops", "deploy", "chatops.deploy.invoked"},
		{"default prefix", BuildListSubject, "", "deploy", "chatops.deploy.list"},
		{"dotted namespace", BuildExecuteSubject, "chatops", "ops.prod", "chatops.ops_prod.execute"},
		{"wildcards escaped", BuildChatSubject, "chatops", "a*b>c", "chatops.a_b_c.chat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.build(tt.prefix, tt.namespace)
			if got != tt.want {
				t.Errorf("commsutil:subjects_test - got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildCommandInvokedSubject(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string
	}{
		{"simple", "wcid", "chatops.deploy.invoked.wcid"},
		{"dotted command", "deploy.app", "chatops.deploy.invoked.deploy_app"},
		{"spaced command", "lock env", "chatops.deploy.invoked.lock_env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCommandInvokedSubject("chatops", "deploy", tt.command)
			if got != tt.want {
				t.Errorf("BuildCommandInvokedSubject(%q) = %q, want %q", tt.command, got, tt.want)
			}
		})
	}
}
