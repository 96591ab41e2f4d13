package auth

import (
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

const (
	minPasswordLength = 6
	// bcrypt ignores anything past 72 bytes
	maxPasswordLength = 72
)

// RegisterAuthRoutes mounts the identity routes on app and returns the
// controller serving them. The session middleware runs for every route.
func RegisterAuthRoutes(app fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Use(controller.HTTP.SessionMiddleware())

	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		Name("register.post")
	app.Get(controller.Routes.VerifyEmail+"/:token", controller.VerifyEmail).
		Name("verify-email.get")
	app.Post(controller.Routes.ResendVerification, controller.ResendVerification).
		Name("resend-verification.post")

	app.Post(controller.Routes.Login, controller.LoginPost).
		Name("sign-in.post")
	app.Get(controller.Routes.Logout, controller.LogOut).
		Name("sign-out.get")
	app.Get(controller.Routes.CheckAuth, controller.CheckAuth).
		Name("check-auth.get")

	app.Get(controller.Routes.Federated+"/:provider", controller.FederatedBegin).
		Name("federated.get")
	app.Get(controller.Routes.Federated+"/:provider/callback", controller.FederatedCallback).
		Name("federated-callback.get")

	app.Post(controller.Routes.ForgotPassword, controller.PasswordResetPost).
		Name("pwd-reset.post")
	app.Post(controller.Routes.ResetPassword+"/:token", controller.PasswordResetExecute).
		Name("pwd-reset-do.post")

	if controller.Admin != nil {
		admin := app.Group(controller.Routes.AdminUsers, controller.HTTP.RequireAdmin())
		admin.Get("/", controller.AdminListUsers).Name("admin-users.get")
		admin.Post("/delete/:id", controller.AdminDeleteUser).Name("admin-users-delete.post")
		admin.Post("/verify/:id", controller.AdminVerifyUser).Name("admin-users-verify.post")
		admin.Post("/reset-password/:id", controller.AdminResetPassword).Name("admin-users-reset.post")
	}

	return controller
}

type AuthControllerRoutes struct {
	Register           string
	VerifyEmail        string
	ResendVerification string
	Login              string
	Logout             string
	CheckAuth          string
	Federated          string
	ForgotPassword     string
	ResetPassword      string
	AdminUsers         string
}

// AuthControllerRedirects are the browser destinations used by the
// redirect based flows
type AuthControllerRedirects struct {
	VerifySuccess string
	LoginSuccess  string
	LoginFailure  string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Routes       *AuthControllerRoutes
	Redirects    *AuthControllerRedirects
	Auther       *Auther
	HTTP         *RouteAuthenticator
	Federation   FederatedFlow
	Register     *RegisterUserHandler
	Resend       *ResendVerificationHandler
	Verify       *VerifyEmailHandler
	ResetRequest *InitializePasswordResetHandler
	ResetExecute *FinalizePasswordResetHandler
	Admin        *AdminUsersHandler
	ErrorHandler func(c *fiber.Ctx, err error) error
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func WithRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func WithRedirects(redirects *AuthControllerRedirects) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if redirects != nil {
			c.Redirects = redirects
		}
		return c
	}
}

func WithAuther(auther *Auther) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithRouteAuthenticator(ra *RouteAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.HTTP = ra
		return c
	}
}

func WithFederatedFlow(flow FederatedFlow) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Federation = flow
		return c
	}
}

func WithRegistration(register *RegisterUserHandler, resend *ResendVerificationHandler, verify *VerifyEmailHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Register = register
		c.Resend = resend
		c.Verify = verify
		return c
	}
}

func WithPasswordReset(request *InitializePasswordResetHandler, execute *FinalizePasswordResetHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.ResetRequest = request
		c.ResetExecute = execute
		return c
	}
}

func WithAdminUsers(admin *AdminUsersHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Admin = admin
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Register:           "/register",
			VerifyEmail:        "/verify-email",
			ResendVerification: "/resend-verification",
			Login:              "/login",
			Logout:             "/logout",
			CheckAuth:          "/check-auth",
			Federated:          "/auth",
			ForgotPassword:     "/forgot-password",
			ResetPassword:      "/reset-password",
			AdminUsers:         "/admin",
		},
		Redirects: &AuthControllerRedirects{
			VerifySuccess: "/",
			LoginSuccess:  "/",
			LoginFailure:  "/login",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	if c.HTTP == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	if c.Register == nil || c.Verify == nil || c.Resend == nil {
		panic("Missing registration handlers in auth controller...")
	}

	if c.ResetRequest == nil || c.ResetExecute == nil {
		panic("Missing password reset handlers in auth controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = func(ctx *fiber.Ctx, err error) error {
			return RenderError(ctx, c.Logger, c.Debug, err)
		}
	}

	return c
}

// CredentialsPayload is the body of register and login. Username is
// accepted as an alias for Email.
type CredentialsPayload struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func (r *CredentialsPayload) normalize() {
	if r.Email == "" {
		r.Email = r.Username
	}
	r.Email = NormalizeEmail(r.Email)
}

// Validate will run validation rules
func (r CredentialsPayload) Validate() *goerrors.Error {
	return validationError(goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Email, validation.Required, is.Email),
			validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
		)
	}, "Invalid credentials payload"))
}

// ValidateLogin only checks presence, length rules apply at registration
func (r CredentialsPayload) ValidateLogin() *goerrors.Error {
	return validationError(goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Email, validation.Required, is.Email),
			validation.Field(&r.Password, validation.Required),
		)
	}, "Invalid login payload"))
}

// EmailPayload is the body of resend-verification and forgot-password
type EmailPayload struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
}

func (r *EmailPayload) normalize() {
	if r.Email == "" {
		r.Email = r.Username
	}
	r.Email = NormalizeEmail(r.Email)
}

// Validate will run validation rules
func (r EmailPayload) Validate() *goerrors.Error {
	return validationError(goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Email, validation.Required, is.Email),
		)
	}, "Invalid email payload"))
}

// NewPasswordPayload is the body of the reset routes. Password is accepted
// as an alias for NewPassword.
type NewPasswordPayload struct {
	NewPassword string `json:"newPassword" form:"newPassword"`
	Password    string `json:"password" form:"password"`
}

func (r *NewPasswordPayload) normalize() {
	if r.NewPassword == "" {
		r.NewPassword = r.Password
	}
}

// Validate will run validation rules
func (r NewPasswordPayload) Validate() *goerrors.Error {
	return validationError(goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.NewPassword, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
		)
	}, "Invalid password payload"))
}

func validationError(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return err.WithCode(goerrors.CodeBadRequest)
}

func (a *AuthController) bind(ctx *fiber.Ctx, payload any) error {
	if err := ctx.BodyParser(payload); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "Failed to parse request body").
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}

func (a *AuthController) dump(label string, payload any) {
	if !a.Debug {
		return
	}
	fmt.Printf("======= AUTH %s ======\n", label)
	fmt.Println(print.MaybePrettyJSON(payload))
	fmt.Println("=========================")
}

func (a *AuthController) identity(user *User) map[string]any {
	return IdentityPayload(NewIdentityFromUser(user, a.HTTP.Policy().RoleFor(user)))
}

func (a *AuthController) RegistrationCreate(ctx *fiber.Ctx) error {
	payload := new(CredentialsPayload)
	if err := a.bind(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	payload.normalize()

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.dump("REGISTER", fiber.Map{"email": payload.Email})

	var created *User
	err := a.Register.Execute(ctx.UserContext(), RegisterUserMessage{
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(user *User) {
			created = user
		},
	})
	if err != nil {
		a.Logger.Error("register user error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "User registered. Please check your email to verify your account.",
		"user":    a.identity(created),
	})
}

func (a *AuthController) VerifyEmail(ctx *fiber.Ctx) error {
	err := a.Verify.Execute(ctx.UserContext(), VerifyEmailMessage{
		Token: ctx.Params("token"),
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(a.Redirects.VerifySuccess, http.StatusFound)
}

func (a *AuthController) ResendVerification(ctx *fiber.Ctx) error {
	payload := new(EmailPayload)
	if err := a.bind(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	payload.normalize()

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Resend.Execute(ctx.UserContext(), ResendVerificationMessage{Email: payload.Email}); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"message": "If the account exists and is not verified, a new verification email was sent.",
	})
}

func (a *AuthController) LoginPost(ctx *fiber.Ctx) error {
	payload := new(CredentialsPayload)
	if err := a.bind(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	payload.normalize()

	if err := payload.ValidateLogin(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.dump("LOGIN", fiber.Map{"email": payload.Email})

	user, err := a.Auther.Authenticate(ctx.UserContext(), PasswordCredentials{
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.HTTP.Login(ctx, user); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"message": "Logged in successfully",
		"user":    a.identity(user),
	})
}

func (a *AuthController) LogOut(ctx *fiber.Ctx) error {
	if err := a.HTTP.Logout(ctx); err != nil {
		a.Logger.Error("logout error", "error", err)
		return a.ErrorHandler(ctx, err)
	}
	return ctx.JSON(fiber.Map{"message": "Logged out successfully"})
}

func (a *AuthController) CheckAuth(ctx *fiber.Ctx) error {
	user, ok := UserFromFiber(ctx)
	if !ok {
		return ctx.Status(http.StatusUnauthorized).JSON(fiber.Map{"authenticated": false})
	}
	return ctx.JSON(fiber.Map{
		"authenticated": true,
		"user":          a.identity(user),
	})
}

func (a *AuthController) FederatedBegin(ctx *fiber.Ctx) error {
	if a.Federation == nil {
		return a.ErrorHandler(ctx, ErrFederationDisabled)
	}

	redirect, err := a.Federation.Begin(ctx.UserContext(), ctx.Params("provider"))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(redirect, http.StatusFound)
}

// FederatedCallback completes a provider handshake. Every failure sends the
// browser to the login failure page.
func (a *AuthController) FederatedCallback(ctx *fiber.Ctx) error {
	provider := ctx.Params("provider")
	if a.Federation == nil {
		return a.ErrorHandler(ctx, ErrFederationDisabled)
	}

	if providerErr := ctx.Query("error"); providerErr != "" {
		a.Logger.Warn("federated login rejected by provider", "provider", provider, "error", providerErr)
		return ctx.Redirect(a.Redirects.LoginFailure, http.StatusFound)
	}

	assertion, err := a.Federation.Complete(ctx.UserContext(), provider, ctx.Query("code"), ctx.Query("state"))
	if err != nil {
		a.Logger.Warn("federated login failed", "provider", provider, "error", err)
		return ctx.Redirect(a.Redirects.LoginFailure, http.StatusFound)
	}

	user, err := a.Auther.Authenticate(ctx.UserContext(), assertion)
	if err != nil {
		a.Logger.Warn("federated login rejected", "provider", provider, "error", err)
		return ctx.Redirect(a.Redirects.LoginFailure, http.StatusFound)
	}

	if err := a.HTTP.Login(ctx, user); err != nil {
		a.Logger.Error("federated session start failed", "provider", provider, "error", err)
		return ctx.Redirect(a.Redirects.LoginFailure, http.StatusFound)
	}

	return ctx.Redirect(a.Redirects.LoginSuccess, http.StatusFound)
}

func (a *AuthController) PasswordResetPost(ctx *fiber.Ctx) error {
	payload := new(EmailPayload)
	if err := a.bind(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	payload.normalize()

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.dump("PASSWORD RESET", fiber.Map{"email": payload.Email})

	if err := a.ResetRequest.Execute(ctx.UserContext(), InitializePasswordResetMessage{Email: payload.Email}); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.Map{"message": "Password reset email sent"})
}

func (a *AuthController) PasswordResetExecute(ctx *fiber.Ctx) error {
	payload := new(NewPasswordPayload)
	if err := a.bind(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	payload.normalize()

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	err := a.ResetExecute.Execute(ctx.UserContext(), FinalizePasswordResetMesasge{
		Token:    ctx.Params("token"),
		Password: payload.NewPassword,
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.Map{"message": "Password has been reset"})
}

func (a *AuthController) AdminListUsers(ctx *fiber.Ctx) error {
	actor, _ := UserFromFiber(ctx)

	users, err := a.Admin.ListUsers(ctx.UserContext(), actor)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	out := make([]map[string]any, 0, len(users))
	for _, user := range users {
		record := a.identity(user)
		record["createdAt"] = user.CreatedAt
		out = append(out, record)
	}

	return ctx.JSON(out)
}

func (a *AuthController) AdminDeleteUser(ctx *fiber.Ctx) error {
	actor, _ := UserFromFiber(ctx)

	id, err := targetID(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Admin.DeleteUser(ctx.UserContext(), actor, id); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.Map{"message": "User deleted"})
}

func (a *AuthController) AdminVerifyUser(ctx *fiber.Ctx) error {
	actor, _ := UserFromFiber(ctx)

	id, err := targetID(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, err := a.Admin.ForceVerify(ctx.UserContext(), actor, id)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"message": "User verified",
		"user":    a.identity(user),
	})
}

func (a *AuthController) AdminResetPassword(ctx *fiber.Ctx) error {
	actor, _ := UserFromFiber(ctx)

	id, err := targetID(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(NewPasswordPayload)
	if err := a.bind(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	payload.normalize()

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, err := a.Admin.ForceResetPassword(ctx.UserContext(), actor, id, payload.NewPassword)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"message": "Password reset",
		"user":    a.identity(user),
	})
}

func targetID(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid user id").
			WithCode(goerrors.CodeBadRequest)
	}
	return id, nil
}
