package postgres

import "testing"

func TestEscapeLike(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"charger", "charger"},
		{"100%", `100\%`},
		{"snake_case", `snake\_case`},
		{`back\slash`, `back\\slash`},
		{`%_\`, `\%\_\\`},
	}
	for _, c := range cases {
		if got := escapeLike(c.in); got != c.want {
			t.Fatalf("escapeLike(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
