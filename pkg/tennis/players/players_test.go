package players

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Carlos Alcaraz", "carlos alcaraz"},
		{"  Carlos   Alcaraz  ", "carlos alcaraz"},
		{"Alcaraz Garfia, Carlos", "carlos alcaraz garfia"},
		{"Novak Đoković", "novak dokovic"},
		{"Gaël Monfils", "gael monfils"},
		{"J.J. Wolf", "j j wolf"},
		{"Félix Auger-Aliassime", "felix auger aliassime"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSurname(t *testing.T) {
	if got := Surname("Iga Świątek"); got != "swiatek" {
		t.Errorf("Surname = %q, want %q", got, "swiatek")
	}
	if got := Surname(""); got != "" {
		t.Errorf("Surname(empty) = %q, want empty", got)
	}
}

func TestInTitle(t *testing.T) {
	cases := []struct {
		name, title string
		want        bool
	}{
		{"Carlos Alcaraz", "Alcaraz vs. Sinner Winner?", true},
		{"Carlos Alcaraz", "Will Carlos Alcaraz win the men's final?", true},
		{"Jannik Sinner", "Alcaraz vs. Sinner Winner?", true},
		{"Novak Djokovic", "Djokovic to win Wimbledon?", true},
		{"Andy Murray", "Alcaraz vs. Sinner Winner?", false},
		{"Casper Ruud", "Will Andy Murray win his opener?", false},
		{"", "Alcaraz vs. Sinner Winner?", false},
		{"Carlos Alcaraz", "", false},
	}
	for _, c := range cases {
		if got := InTitle(c.name, c.title); got != c.want {
			t.Errorf("InTitle(%q, %q) = %v, want %v", c.name, c.title, got, c.want)
		}
	}
}

func TestMatch(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"Carlos Alcaraz", "ALCARAZ, Carlos", true},
		{"C. Alcaraz", "Carlos Alcaraz", true},
		{"Alcaraz", "Carlos Alcaraz", true},
		{"Jannik Sinner", "Carlos Alcaraz", false},
		{"Andy Murray", "Jamie Murray", false},
		{"", "Carlos Alcaraz", false},
	}
	for _, c := range cases {
		if got := Match(c.a, c.b); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
