package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cppla/vibemusic/models"
	"github.com/cppla/vibemusic/utils"
)

func init() {
	utils.PasswordCost = bcrypt.MinCost
}

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func (m *fakeMailer) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.sent)
	code := codePattern.FindString(m.sent[len(m.sent)-1].body)
	require.NotEmpty(t, code)
	return code
}

type accountFixture struct {
	svc    *AccountService
	mailer *fakeMailer
	tokens *utils.LoginTokenStore
	store  *memStore
	seq    int
}

func newAccounts(t *testing.T) *accountFixture {
	t.Helper()
	f := &accountFixture{
		mailer: &fakeMailer{},
		tokens: utils.NewLoginTokenStore(nil),
		store:  newMemStore(),
	}
	issue := func(userID uint, username, role string, ttl time.Duration) (string, error) {
		f.seq++
		return fmt.Sprintf("tok-%d-%s-%s-%d", userID, username, role, f.seq), nil
	}
	f.svc = NewAccountService(newTestDB(t), AccountDeps{
		Tokens:         f.tokens,
		Codes:          utils.NewCodeStore(nil),
		Mailer:         f.mailer,
		Issue:          issue,
		Store:          f.store,
		AdminUsernames: []string{"Boss"},
	}, nil)
	return f
}

func (f *accountFixture) register(t *testing.T, username, email string) *LoginResult {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.SendEmailCode(ctx, email))
	res, err := f.svc.Register(ctx, RegisterInput{
		Username: username,
		Email:    email,
		Password: "secret-1",
		Confirm:  "secret-1",
		Code:     f.mailer.lastCode(t),
	})
	require.NoError(t, err)
	return res
}

func TestAccountRegisterAndLogin(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()

	res := f.register(t, "melody", "melody@example.com")
	assert.Equal(t, models.RoleUser, res.Role)
	assert.Equal(t, models.DefaultUserScore, res.User.Score)
	assert.True(t, f.tokens.Exists(ctx, res.Token))

	_, err := f.svc.Login(ctx, "melody", "wrong-pass")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.svc.Login(ctx, "nobody", "secret-1")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	login, err := f.svc.Login(ctx, " melody ", "secret-1")
	require.NoError(t, err)
	assert.NotEqual(t, res.Token, login.Token)
	assert.True(t, f.svc.TokenActive(ctx, login.Token))

	require.NoError(t, f.svc.Logout(ctx, login.Token))
	assert.False(t, f.svc.TokenActive(ctx, login.Token))
	assert.True(t, f.svc.TokenActive(ctx, res.Token), "other sessions survive")
}

func TestAccountRegister_Validation(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	base := RegisterInput{Username: "melody", Email: "m@example.com", Password: "secret-1", Confirm: "secret-1", Code: "123456"}

	cases := map[string]func(in *RegisterInput){
		"short username":    func(in *RegisterInput) { in.Username = "m" },
		"bad username":      func(in *RegisterInput) { in.Username = "me lody" },
		"mismatch":          func(in *RegisterInput) { in.Confirm = "secret-2" },
		"short password":    func(in *RegisterInput) { in.Password, in.Confirm = "abc", "abc" },
		"password charset":  func(in *RegisterInput) { in.Password, in.Confirm = "secret!!", "secret!!" },
		"missing code":      func(in *RegisterInput) { in.Code = "" },
		"wrong code":        func(in *RegisterInput) {},
		"missing email":     func(in *RegisterInput) { in.Email = "" },
		"username too long": func(in *RegisterInput) { in.Username = strings.Repeat("a", 16) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := f.svc.Register(ctx, in)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestAccountRegister_DuplicateUsername(t *testing.T) {
	f := newAccounts(t)
	f.register(t, "melody", "a@example.com")

	ctx := context.Background()
	require.NoError(t, f.svc.SendEmailCode(ctx, "b@example.com"))
	_, err := f.svc.Register(ctx, RegisterInput{
		Username: "melody", Email: "b@example.com", Password: "secret-1", Confirm: "secret-1", Code: f.mailer.lastCode(t),
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAccountSendEmailCode(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.SendEmailCode(ctx, "not-an-email"), ErrInvalidRequest)
	require.NoError(t, f.svc.SendEmailCode(ctx, "a@example.com"))
	assert.ErrorIs(t, f.svc.SendEmailCode(ctx, "a@example.com"), ErrRateLimited)
	assert.Equal(t, "a@example.com", f.mailer.sent[0].to)

	f.mailer.err = errors.New("smtp down")
	err := f.svc.SendEmailCode(ctx, "b@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidRequest)
}

func TestAccountAdminRole(t *testing.T) {
	f := newAccounts(t)
	assert.Equal(t, models.RoleAdmin, f.svc.RoleFor("boss"))
	assert.Equal(t, models.RoleUser, f.svc.RoleFor("bossy"))

	res := f.register(t, "Boss", "boss@example.com")
	assert.Equal(t, models.RoleAdmin, res.Role)
	assert.Contains(t, res.Token, models.RoleAdmin)
}

func TestAccountDisabledLogin(t *testing.T) {
	f := newAccounts(t)
	res := f.register(t, "melody", "m@example.com")
	require.NoError(t, f.svc.db.Model(&models.User{}).Where("id = ?", res.User.ID).Update("status", models.UserDisabled).Error)

	_, err := f.svc.Login(context.Background(), "melody", "secret-1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAccountProfile(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	res := f.register(t, "melody", "m@example.com")
	caller := Caller{UserID: res.User.ID, Username: "melody", Role: res.Role}

	_, err := f.svc.Me(ctx, Caller{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	intro := `<b>hi</b><script>x</script>`
	area := "Wuhan"
	birth := time.Date(2000, 2, 2, 0, 0, 0, 0, time.UTC)
	u, err := f.svc.UpdateProfile(ctx, caller, ProfileInput{Introduction: &intro, Area: &area, Birth: &birth})
	require.NoError(t, err)
	assert.Equal(t, "Wuhan", u.Area)
	assert.NotContains(t, u.Introduction, "script")
	assert.True(t, u.ProfileComplete())

	future := time.Now().Add(48 * time.Hour)
	_, err = f.svc.UpdateProfile(ctx, caller, ProfileInput{Birth: &future})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	bad := "nope"
	_, err = f.svc.UpdateProfile(ctx, caller, ProfileInput{Email: &bad})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAccountUpdateAvatar(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	res := f.register(t, "melody", "m@example.com")
	caller := Caller{UserID: res.User.ID, Username: "melody", Role: res.Role}

	_, err := f.svc.UpdateAvatar(ctx, caller, Upload{Filename: "a.txt", ContentType: "text/plain", Reader: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	first, err := f.svc.UpdateAvatar(ctx, caller, Upload{Filename: "a.png", ContentType: "image/png", Reader: strings.NewReader("x")})
	require.NoError(t, err)
	assert.Contains(t, first.AvatarURL, "/"+FolderAvatars+"/")
	firstURL := first.AvatarURL

	second, err := f.svc.UpdateAvatar(ctx, caller, Upload{Filename: "b.png", ContentType: "image/png", Reader: strings.NewReader("y")})
	require.NoError(t, err)
	assert.NotEqual(t, firstURL, second.AvatarURL)
	assert.Equal(t, []string{firstURL}, f.store.deleted, "the replaced avatar is removed")
}
