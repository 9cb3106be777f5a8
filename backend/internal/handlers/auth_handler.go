package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/user/dexsettle/backend/internal/auth"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/database"
	"github.com/user/dexsettle/backend/internal/middleware"
	"github.com/user/dexsettle/backend/internal/models"
)

// SignupRequest defines the expected JSON body for signup
type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest defines the expected JSON body for login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse defines the JSON response for successful auth
type AuthResponse struct {
	Token    string       `json:"token"`
	User     *models.User `json:"user"`
	IssuedAt time.Time    `json:"issued_at"`
}

// Signup registers a user. The user's ledger account is derived from the
// username, so the same name always trades as the same address.
func Signup(c *fiber.Ctx) error {
	if database.DB == nil {
		return dbUnavailable(c)
	}
	req := new(SignupRequest)
	if err := c.BodyParser(req); err != nil {
		return badRequest(c, "Cannot parse request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || strings.TrimSpace(req.Password) == "" {
		return badRequest(c, "Username and password cannot be empty")
	}

	existingUser, err := database.GetUserByUsername(c.Context(), req.Username)
	if err != nil {
		log.Errorf("Error checking username %s: %v", req.Username, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error checking username"})
	}
	if existingUser != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Username already taken"})
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Errorf("Error hashing password for %s: %v", req.Username, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process password"})
	}

	newUser, err := database.CreateUser(c.Context(), req.Username, hashedPassword, chain.AccountFromName(req.Username))
	if err != nil {
		log.Errorf("Error creating user %s: %v", req.Username, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create user"})
	}

	token, err := auth.GenerateJWT(newUser.ID, newUser.Username, newUser.Account)
	if err != nil {
		log.Errorf("Error generating JWT for user %s: %v", newUser.Username, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "User created, but failed to generate token"})
	}
	log.WithFields(log.Fields{"user": newUser.Username, "account": newUser.Account.Hex()}).Info("User signed up")

	return c.Status(fiber.StatusCreated).JSON(AuthResponse{
		Token:    token,
		User:     newUser,
		IssuedAt: time.Now(),
	})
}

// Login handles user authentication.
func Login(c *fiber.Ctx) error {
	if database.DB == nil {
		return dbUnavailable(c)
	}
	req := new(LoginRequest)
	if err := c.BodyParser(req); err != nil {
		return badRequest(c, "Cannot parse request body")
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Password) == "" {
		return badRequest(c, "Username and password cannot be empty")
	}

	user, err := database.GetUserByUsername(c.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		log.Errorf("Error finding user %s: %v", req.Username, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error finding user"})
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid username or password"})
	}

	token, err := auth.GenerateJWT(user.ID, user.Username, user.Account)
	if err != nil {
		log.Errorf("Error generating JWT for user %s: %v", user.Username, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}

	return c.Status(fiber.StatusOK).JSON(AuthResponse{
		Token:    token,
		User:     user,
		IssuedAt: time.Now(),
	})
}

// Me returns the identity carried by the bearer token, plus the stored
// record when the database is configured.
func Me(c *fiber.Ctx) error {
	userID, ok := c.Locals(middleware.LocalUserID).(uuid.UUID)
	username, ok2 := c.Locals(middleware.LocalUsername).(string)
	account, ok3 := middleware.Account(c)
	if !ok || !ok2 || !ok3 {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to get user info from context"})
	}
	body := fiber.Map{
		"user_id":  userID,
		"username": username,
		"account":  account,
	}
	if database.DB != nil {
		user, err := database.GetUserByID(c.Context(), userID)
		if err != nil {
			log.Errorf("Error loading user %s: %v", userID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error loading user"})
		}
		if user == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User no longer exists"})
		}
		body["created_at"] = user.CreatedAt
	}
	return c.JSON(body)
}
