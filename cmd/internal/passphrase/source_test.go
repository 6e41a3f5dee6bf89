package passphrase

import (
	"bytes"
	"testing"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("FAIRLAUNCH_TEST_PASS", "hunter2")
	src := NewSource("FAIRLAUNCH_TEST_PASS", "")
	got, err := src.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("got %q %v", got, err)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("FAIRLAUNCH_TEST_PASS", "  ")
	if _, err := NewSource("FAIRLAUNCH_TEST_PASS", "").Get(); err == nil {
		t.Fatalf("expected blank passphrase error")
	}
}

func TestSourcePromptsOnTerminal(t *testing.T) {
	var prompt bytes.Buffer
	calls := 0
	src := NewSource("", "operator keystore passphrase")
	src.isTerminal = func(int) bool { return true }
	src.readPassword = func(int) ([]byte, error) {
		calls++
		return []byte("s3cret"), nil
	}
	src.prompt = &prompt

	for i := 0; i < 2; i++ {
		got, err := src.Get()
		if err != nil || got != "s3cret" {
			t.Fatalf("got %q %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("passphrase should be cached, read %d times", calls)
	}
	if !bytes.Contains(prompt.Bytes(), []byte("operator keystore passphrase")) {
		t.Fatalf("prompt missing label: %q", prompt.String())
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	src := NewSource("", "")
	src.isTerminal = func(int) bool { return false }
	if _, err := src.Get(); err == nil {
		t.Fatalf("expected error without terminal")
	}
}
