package sim

import (
	"errors"
	"strings"
)

// A Named object is an object that has a name.
type Named interface {
	Name() string
}

// ValidateName checks if the name can be used to identify a simulation
// element. Names are dot-separated tokens such as "City.Hospital[2].Eth0".
// Tokens must not be empty or contain white spaces, and brackets must match.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("name must not be empty")
	}

	if strings.ContainsAny(name, " \t\n") {
		return errors.New("name must not contain white spaces: " + name)
	}

	for _, token := range strings.Split(name, ".") {
		if token == "" {
			return errors.New("name token must not be empty: " + name)
		}

		if !bracketsMatch(token) {
			return errors.New("name bracket must match: " + token)
		}
	}

	return nil
}

// NameMustBeValid panics if ValidateName rejects the name.
func NameMustBeValid(name string) {
	if err := ValidateName(name); err != nil {
		panic(err.Error())
	}
}

func bracketsMatch(token string) bool {
	open := 0
	for _, c := range token {
		switch c {
		case '[':
			open++
		case ']':
			open--
			if open < 0 {
				return false
			}
		}
	}

	return open == 0
}
