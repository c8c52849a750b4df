package models

import "testing"

func TestQualifyToolRoundTrip(t *testing.T) {
	qualified := QualifyTool("search", "web_search")
	wantQualified := "mcp__search__web_search"
	if qualified != wantQualified {
		t.Fatalf("QualifyTool() = %q, want %q", qualified, wantQualified)
	}

	server, tool, err := ParseQualifiedTool(qualified)
	if err != nil {
		t.Fatalf("ParseQualifiedTool: %v", err)
	}
	if server != "search" || tool != "web_search" {
		t.Fatalf("ParseQualifiedTool() = (%q, %q), want (search, web_search)", server, tool)
	}
}

func TestParseQualifiedToolToleratesDoubleUnderscoreInToolName(t *testing.T) {
	server, tool, err := ParseQualifiedTool("mcp__search__web__search")
	if err != nil {
		t.Fatalf("ParseQualifiedTool: %v", err)
	}
	if server != "search" || tool != "web__search" {
		t.Fatalf("expected the tool half to keep embedded separators, got (%q, %q)", server, tool)
	}
}

func TestParseQualifiedToolRejectsMalformedNames(t *testing.T) {
	cases := []string{
		"",
		"not_qualified",
		"mcp__onlyserver",
		"mcp____missing_server",
		"mcp__server__",
	}
	for _, c := range cases {
		if _, _, err := ParseQualifiedTool(c); err == nil {
			t.Errorf("ParseQualifiedTool(%q) expected an error, got nil", c)
		}
	}
}
