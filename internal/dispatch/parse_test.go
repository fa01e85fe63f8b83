package dispatch

import "testing"

func TestParseCommand(t *testing.T) {
	cases := []struct {
		raw      string
		wantVerb string
		wantArgs string
	}{
		{"refresh", "refresh", ""},
		{"list_files:/tmp", "list_files", "/tmp"},
		{"upload_file_start:/tmp/x.bin:5", "upload_file_start", "/tmp/x.bin:5"},
		{"apt:get_repos", "apt:get_repos", ""},
		{"apt:save_repo:/etc/apt/sources.list.d/x.list:ZGViIA==", "apt:save_repo", "/etc/apt/sources.list.d/x.list:ZGViIA=="},
		{"interactive:start:/bin/sh", "interactive:start", "/bin/sh"},
		{"interactive:resize:24,80", "interactive:resize", "24,80"},
		{"apply_settings:{\"info_text\":\"x\"}", "apply_settings", "{\"info_text\":\"x\"}"},
	}
	for _, c := range cases {
		got := ParseCommand(c.raw)
		if got.Verb != c.wantVerb || got.Args != c.wantArgs {
			t.Errorf("ParseCommand(%q) = {%q,%q}, want {%q,%q}", c.raw, got.Verb, got.Args, c.wantVerb, c.wantArgs)
		}
	}
}

func TestIsAllDigits(t *testing.T) {
	cases := map[string]bool{
		"123":   true,
		"":      false,
		"12a":   false,
		"0":     true,
		"/tmp/x": false,
	}
	for s, want := range cases {
		if got := isAllDigits(s); got != want {
			t.Errorf("isAllDigits(%q) = %v, want %v", s, got, want)
		}
	}
}
