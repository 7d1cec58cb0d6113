package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/user"
)

const userTokenContextKey = "userToken"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// RoleSet resolves the caller's capability set from the token roles.
func (c Claims) RoleSet() user.RoleSet {
	roles := make([]user.Role, len(c.Roles))
	for i, r := range c.Roles {
		roles[i] = user.Role(r)
	}
	return user.NewRoleSet(roles...)
}

func (c Claims) UserID() int {
	id, _ := strconv.Atoi(c.Subject)
	return id
}

type authenticator struct {
	conf *core.Config
	svc  *user.Service
}

func (a authenticator) jwtConfig() middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(a.conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    userTokenContextKey,
		Claims:        new(Claims),
	}
}

func (a authenticator) userClaims(usr user.User) *Claims {
	now := time.Now()
	roles := make([]string, len(usr.Roles))
	for i, r := range usr.Roles {
		roles[i] = string(r)
	}
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   strconv.Itoa(usr.ID),
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: usr.Username,
		Email:    usr.Email,
		Roles:    roles,
	}
}

func (a authenticator) authenticate(ctx echo.Context, uname, pwd string) (*Claims, error) {
	usr, err := a.svc.GetByUsernameOrEmail(ctx.Request().Context(), uname)
	if err != nil {
		if err == user.ErrNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !usr.IsActive {
		return nil, errAccountDeactivated
	}
	if _, err = a.svc.SetLastLogin(ctx.Request().Context(), usr); err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return a.userClaims(usr), nil
}

// generateToken generates a signed JWT token string representing the user Claims.
func (a authenticator) generateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(a.conf.SecretKey))
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(userTokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextRoleSet(ctx echo.Context) (user.RoleSet, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return nil, err
	}
	return claims.RoleSet(), nil
}

// roleMiddleware rejects callers holding none of the given roles.
func roleMiddleware(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			set, err := getContextRoleSet(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if set.HasAny(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
