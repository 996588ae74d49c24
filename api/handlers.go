package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"todo-api/domain"
	"todo-api/storage"
)

const (
	msgUnauthenticated    = "invalid or missing token"
	msgInvalidCredentials = "Invalid email or password."
	msgEmailTaken         = "A user with this email already exists."
	msgRegistered         = "User registered successfully"
	msgInternalError      = "an unexpected error occurred"
	msgInvalidBody        = "invalid body"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, issuer TokenIssuer, creds *Credentials, logger *log.Logger) {
	e.POST("/api/v1/auth/register", registerUser(creds, logger))
	e.POST("/api/v1/auth/login", loginUser(creds, issuer, logger))
	e.GET("/api/v1/todos", listTodos(store, auth, logger))
	e.POST("/api/v1/todos", createTodo(store, auth, logger))
	e.GET("/api/v1/todos/:id", getTodo(store, auth, logger))
	e.PUT("/api/v1/todos/:id", updateTodo(store, auth, logger))
	e.DELETE("/api/v1/todos/:id", deleteTodo(store, auth, logger))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// callerID authenticates the request. On failure the client always sees the
// same unauthenticated outcome; the underlying reason is logged only.
func callerID(c echo.Context, auth Authenticator, logger *log.Logger) (string, bool) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		logger.WithError(err).Debug("authentication failed")
		return "", false
	}
	return userID, true
}

func registerUser(creds *Credentials, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: msgInvalidBody})
		}

		user, err := creds.Register(c.Request().Context(), req.Email, req.Password)
		if err != nil {
			var policyErr PolicyError
			switch {
			case errors.Is(err, storage.ErrEmailTaken):
				logger.WithField("email", domain.NormalizeEmail(req.Email)).Warn("registration rejected: email taken")
				return c.JSON(http.StatusBadRequest, errorResponse{Error: msgEmailTaken})
			case errors.As(err, &policyErr):
				return c.JSON(http.StatusBadRequest, errorResponse{Error: policyErr.Error()})
			default:
				logger.WithError(err).Error("registration failed")
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternalError})
			}
		}

		logger.WithField("user_id", user.ID).Info("user registered")
		return c.JSON(http.StatusOK, messageResponse{Message: msgRegistered})
	}
}

func loginUser(creds *Credentials, issuer TokenIssuer, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: msgInvalidBody})
		}

		user, err := creds.Authenticate(c.Request().Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				// Unknown email and wrong password produce this same response.
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: msgInvalidCredentials})
			}
			logger.WithError(err).Error("login failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternalError})
		}

		token, err := issuer.Issue(user)
		if err != nil {
			logger.WithError(err).Error("token issuance failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternalError})
		}

		logger.WithField("user_id", user.ID).Info("user logged in")
		return c.JSON(http.StatusOK, loginResponse{Token: token, Email: user.Email})
	}
}

func listTodos(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTodoRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, ok := callerID(c, auth, logger)
		metrics.ObserveAuth(time.Since(authStart))
		if !ok {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: msgUnauthenticated})
			return err
		}

		fetchStart := time.Now()
		todos, fetchErr := store.ListTodos(ctx, userID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			logger.WithError(fetchErr).Error("list todos failed")
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternalError})
			return err
		}

		domain.SortNewestFirst(todos)
		metrics.SetTodosReturned(len(todos))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, todos)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func createTodo(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := callerID(c, auth, logger)
		if !ok {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: msgUnauthenticated})
		}

		var req createTodoRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: msgInvalidBody})
		}
		if err := domain.ValidateTitle(req.Title); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		todo := domain.NewTodo(uuid.NewString(), userID, req.Title, nextCreationTime())
		if err := store.InsertTodo(c.Request().Context(), todo); err != nil {
			logger.WithError(err).Error("create todo failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternalError})
		}

		c.Response().Header().Set(echo.HeaderLocation, "/api/v1/todos/"+todo.ID)
		return c.JSON(http.StatusCreated, todo)
	}
}

func getTodo(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := callerID(c, auth, logger)
		if !ok {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: msgUnauthenticated})
		}
		id, ok := todoID(c)
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}

		todo, err := store.GetTodo(c.Request().Context(), userID, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.NoContent(http.StatusNotFound)
			}
			logger.WithError(err).Error("get todo failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternalError})
		}
		return c.JSON(http.StatusOK, todo)
	}
}

func updateTodo(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := callerID(c, auth, logger)
		if !ok {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: msgUnauthenticated})
		}

		var req updateTodoRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: msgInvalidBody})
		}
		// Title validation happens before the ownership lookup.
		if err := domain.ValidateTitle(req.Title); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		id, ok := todoID(c)
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}

		ctx := c.Request().Context()
		todo, err := store.GetTodo(ctx, userID, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.NoContent(http.StatusNotFound)
			}
			logger.WithError(err).Error("update todo failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternalError})
		}

		todo.Title = strings.TrimSpace(req.Title)
		todo.IsCompleted = req.IsCompleted
		if err := store.UpdateTodo(ctx, todo); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Deleted between lookup and write.
				return c.NoContent(http.StatusNotFound)
			}
			logger.WithError(err).Error("update todo failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternalError})
		}
		return c.JSON(http.StatusOK, todo)
	}
}

func deleteTodo(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := callerID(c, auth, logger)
		if !ok {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: msgUnauthenticated})
		}
		id, ok := todoID(c)
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}

		if err := store.DeleteTodo(c.Request().Context(), userID, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.NoContent(http.StatusNotFound)
			}
			logger.WithError(err).Error("delete todo failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternalError})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// todoID parses the :id route parameter. An id that is not a UUID cannot
// name any record, so a malformed one is itself a not-found condition.
func todoID(c echo.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", false
	}
	return id.String(), true
}
