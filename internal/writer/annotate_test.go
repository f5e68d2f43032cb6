package writer

import (
	"testing"

	"github.com/jammie19/pip-tools/internal/req"
)

func origin(text string) *req.Requirement {
	return &req.Requirement{Name: "x", ComesFrom: &req.Origin{Text: text}}
}

func TestComesFromLinePattern(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"-r requirements.in (line 3)", "-r requirements.in"},
		{"-c constraints.txt (line 12)", "-c constraints.txt"},
		{"-r /abs/path/reqs.in (line 1)", "-r /abs/path/reqs.in"},
		// no line suffix: passes through verbatim
		{"-r requirements.in", "-r requirements.in"},
	}
	for _, tt := range tests {
		if got := comesFromAsString(origin(tt.text), ""); got != tt.want {
			t.Errorf("comesFromAsString(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestComesFromProjectPattern(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"myproj (/src/myproj/setup.py)", "myproj (/src/myproj/setup.py)"},
		{"myproj (/src/myproj/setup.cfg)", "myproj (/src/myproj/setup.cfg)"},
		{"myproj (/src/myproj/pyproject.toml)", "myproj (/src/myproj/pyproject.toml)"},
	}
	for _, tt := range tests {
		if got := comesFromAsString(origin(tt.text), ""); got != tt.want {
			t.Errorf("comesFromAsString(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestComesFromRelativizesAgainstFromDir(t *testing.T) {
	got := comesFromAsString(origin("-r /srv/project/requirements.in (line 2)"), "/srv/project")
	if got != "-r requirements.in" {
		t.Errorf("comesFromAsString = %q, want %q", got, "-r requirements.in")
	}

	got = comesFromAsString(origin("myproj (/srv/project/setup.py)"), "/srv/project")
	if got != "myproj (setup.py)" {
		t.Errorf("comesFromAsString = %q, want %q", got, "myproj (setup.py)")
	}
}

func TestComesFromParentRequirement(t *testing.T) {
	parent := &req.Requirement{Name: "Parent_Pkg"}
	child := &req.Requirement{
		Name:      "child",
		ComesFrom: &req.Origin{Parent: parent},
	}
	if got := comesFromAsString(child, ""); got != "parent-pkg" {
		t.Errorf("comesFromAsString = %q, want %q", got, "parent-pkg")
	}
}

func TestComesFromUnrecognizedPassesThrough(t *testing.T) {
	if got := comesFromAsString(origin("something odd"), "/srv"); got != "something odd" {
		t.Errorf("comesFromAsString = %q, want verbatim text", got)
	}
	if got := comesFromAsString(&req.Requirement{Name: "x"}, ""); got != "" {
		t.Errorf("comesFromAsString without origin = %q, want empty", got)
	}
}
