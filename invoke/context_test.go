package invoke

import "testing"

func TestContext_FreshStatePerInvocation(t *testing.T) {
	a := NewContext("greet", map[string]any{"name": "World"}, Metadata{Locale: "en"})
	b := NewContext("greet", map[string]any{"name": "World"}, Metadata{Locale: "en"})

	if a.ID == "" || b.ID == "" {
		t.Fatal("contexts must carry invocation IDs")
	}
	if a.ID == b.ID {
		t.Fatalf("two invocations share ID %q", a.ID)
	}

	a.Set("k", "v")
	if _, ok := b.Get("k"); ok {
		t.Error("state written to one context is visible in another")
	}
}

func TestContext_StateOperations(t *testing.T) {
	c := NewContext("t", nil, Metadata{})

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty state reports present")
	}

	c.Set("k", 1)
	c.Set("k", 2)
	if v, _ := c.Get("k"); v != 2 {
		t.Errorf("Get(k) = %v, want 2", v)
	}

	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Delete did not remove key")
	}
}

func TestContext_ResponseKey(t *testing.T) {
	c := NewContext("t", nil, Metadata{})

	if c.HasResponse() {
		t.Fatal("fresh context reports a response")
	}
	if _, ok := c.Response(); ok {
		t.Fatal("fresh context returns a response")
	}

	c.SetResponse(map[string]any{"message": "cached"})
	out, ok := c.Response()
	if !ok {
		t.Fatal("Response() = not ok after SetResponse")
	}
	if out["message"] != "cached" {
		t.Errorf("response = %v", out)
	}

	// A non-map value under the reserved key is present but unusable.
	c.Set(StateKeyResponse, "not a map")
	if !c.HasResponse() {
		t.Error("HasResponse should see the raw value")
	}
	if _, ok := c.Response(); ok {
		t.Error("Response should reject a non-map value")
	}
}
