package collection

import "testing"

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"my-repo":      "my_repo",
		"my/repo name": "my_repo_name",
		"already_ok":   "already_ok",
		"Repo123":      "Repo123",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNameStableAndScoped(t *testing.T) {
	a := Name("sagitta", "my-repo", "main")
	b := Name("sagitta", "my-repo", "main")
	if a != b {
		t.Fatalf("expected stable name, got %q != %q", a, b)
	}
	if a == Name("sagitta", "my-repo", "dev") {
		t.Fatalf("expected different branches to yield different names")
	}
	if a == Name("sagitta", "other-repo", "main") {
		t.Fatalf("expected different repos to yield different names")
	}
}

func TestNameShape(t *testing.T) {
	name := Name("sagitta", "my/repo", "feature-x")
	const wantPrefix = "sagitta_my_repo_br_"
	if len(name) != len(wantPrefix)+8 {
		t.Fatalf("unexpected name length: %q", name)
	}
	if name[:len(wantPrefix)] != wantPrefix {
		t.Fatalf("unexpected name prefix: %q", name)
	}
}
