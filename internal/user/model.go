package user

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// User represents an account in the user directory. Credentials are kept
// in a separate store and never appear here.
type User struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Surname        string `json:"surname"`
	Lab            string `json:"lab"`
	UploadsEnabled bool   `json:"uploads_enabled"`
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidUsername applies the username policy: 1-20 alphanumeric characters,
// underscore allowed.
func ValidUsername(name string) bool {
	return len(name) >= 1 && len(name) <= 20 && usernamePattern.MatchString(name)
}

// profileRecord is the on-disk shape of one user directory entry: a
// fixed-position array [email, surname, lab, upload_flag].
type profileRecord struct {
	Email          string
	Surname        string
	Lab            string
	UploadsEnabled bool
}

func (r profileRecord) MarshalJSON() ([]byte, error) {
	flag := 0
	if r.UploadsEnabled {
		flag = 1
	}
	return json.Marshal([]any{r.Email, r.Surname, r.Lab, flag})
}

func (r *profileRecord) UnmarshalJSON(data []byte) error {
	var slots []any
	if err := json.Unmarshal(data, &slots); err != nil {
		return err
	}
	// legacy records occasionally dropped the trailing flag slot
	if len(slots) < 3 || len(slots) > 4 {
		return fmt.Errorf("user record has %d slots, want 3 or 4", len(slots))
	}
	r.Email, _ = slots[0].(string)
	r.Surname, _ = slots[1].(string)
	r.Lab, _ = slots[2].(string)
	r.UploadsEnabled = false
	if len(slots) == 4 {
		if f, ok := slots[3].(float64); ok {
			r.UploadsEnabled = f != 0
		}
	}
	return nil
}
