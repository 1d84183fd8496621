package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"ripple/models"
)

type GoogleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type GoogleAuthRequest struct {
	Credential string `json:"credential" binding:"required"`
}

// googleOAuthConfig builds the OAuth config from injected settings; nil when
// Google sign-in is not configured.
func (a *API) googleOAuthConfig() *oauth2.Config {
	if a.Cfg.GoogleClientID == "" || a.Cfg.GoogleClientSecret == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     a.Cfg.GoogleClientID,
		ClientSecret: a.Cfg.GoogleClientSecret,
		RedirectURL:  a.Cfg.GoogleRedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// GoogleAuthURL hands the client the consent-screen URL.
func (a *API) GoogleAuthURL(c *gin.Context) {
	cfg := a.googleOAuthConfig()
	if cfg == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": cfg.AuthCodeURL("state", oauth2.AccessTypeOnline)})
}

// GoogleOAuthCallback completes the authorization-code flow.
func (a *API) GoogleOAuthCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization code missing"})
		return
	}

	cfg := a.googleOAuthConfig()
	if cfg == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured"})
		return
	}

	ctx := c.Request.Context()
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		a.Log.WithError(err).Error("google token exchange failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to exchange authorization code"})
		return
	}

	client := cfg.Client(ctx, token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		a.Log.WithError(err).Error("google userinfo request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user information"})
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read user information"})
		return
	}

	var googleUser GoogleUserInfo
	if err := json.Unmarshal(data, &googleUser); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse user information"})
		return
	}
	a.handleGoogleUser(c, googleUser)
}

// GoogleAuthWithCredential signs in with a Google Identity Services credential.
func (a *API) GoogleAuthWithCredential(c *gin.Context) {
	var req GoogleAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, _, err := new(jwt.Parser).ParseUnverified(req.Credential, jwt.MapClaims{})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Google credential"})
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Google credential"})
		return
	}

	googleUser := GoogleUserInfo{
		ID:      stringClaim(claims, "sub"),
		Email:   stringClaim(claims, "email"),
		Name:    stringClaim(claims, "name"),
		Picture: stringClaim(claims, "picture"),
	}
	if googleUser.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email not provided by Google"})
		return
	}
	a.handleGoogleUser(c, googleUser)
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func usernameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return "user_" + primitive.NewObjectID().Hex()[:8]
	}
	return strings.ReplaceAll(local, ".", "") + "_" + primitive.NewObjectID().Hex()[:4]
}

// handleGoogleUser signs an existing user in or registers a new one.
func (a *API) handleGoogleUser(c *gin.Context, googleUser GoogleUserInfo) {
	ctx, cancel := requestContext()
	defer cancel()

	var user models.User
	err := a.DB.Users.FindOne(ctx, bson.M{"email": googleUser.Email}).Decode(&user)
	switch {
	case err == nil:
		update := bson.M{"lastSeen": time.Now().Unix()}
		if user.GoogleID == "" && googleUser.ID != "" {
			update["googleId"] = googleUser.ID
		}
		a.DB.Users.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": update})

	case err == mongo.ErrNoDocuments:
		user = models.User{
			ID:           primitive.NewObjectID(),
			Email:        googleUser.Email,
			AuthProvider: "google",
			GoogleID:     googleUser.ID,
			Username:     usernameFromEmail(googleUser.Email),
			Name:         googleUser.Name,
			Avatar:       googleUser.Picture,
			CreatedAt:    time.Now().Unix(),
			LastSeen:     time.Now().Unix(),
		}
		if _, err := a.DB.Users.InsertOne(ctx, user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	tokenString, err := a.issueToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  tokenString,
		"userId": user.ID.Hex(),
	})
}
