package utils

import (
	"github.com/mojocn/base64Captcha"
)

// Captcha issues and checks digit captchas for the registration form.
type Captcha struct {
	store base64Captcha.Store
}

func NewCaptcha(store base64Captcha.Store) *Captcha {
	if store == nil {
		store = base64Captcha.DefaultMemStore
	}
	return &Captcha{store: store}
}

// Generate creates a captcha and returns (id, dataURI) for the frontend to display.
func (c *Captcha) Generate() (string, string, error) {
	// width 120, height 40, length 5
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	id, b64, _, err := base64Captcha.NewCaptcha(driver, c.store).Generate()
	return id, b64, err
}

// Verify checks the answer and consumes the captcha.
func (c *Captcha) Verify(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return c.store.Verify(id, answer, true)
}
