package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/config"
	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/services"
	"github.com/emberlabs/emberhub/utils"
)

// AuthController handles registration, login, profiles, and follows.
type AuthController struct {
	db     *gorm.DB
	notify *services.NotifyService
}

// NewAuthController creates a new controller instance.
func NewAuthController(db *gorm.DB, notify *services.NotifyService) *AuthController {
	return &AuthController{db: db, notify: notify}
}

// Register creates an account after email-code verification and per-IP
// anti-abuse checks.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" binding:"required,min=3,max=64"`
		Email    string `json:"email"`
		Password string `json:"password" binding:"required,min=6"`
		Confirm  string `json:"confirm"`
		Code     string `json:"code"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if l := len([]rune(req.Username)); l < 3 || l > 20 {
		utils.Error(ctx, http.StatusBadRequest, 40002, "username must be 3-20 characters")
		return
	}
	if !validUsername(req.Username) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "username may only contain letters, digits and '-'")
		return
	}

	var existing models.User
	if err := a.db.Where("username = ?", req.Username).First(&existing).Error; err == nil {
		utils.Error(ctx, http.StatusConflict, 40901, "username already exists")
		return
	}

	if req.Password != req.Confirm {
		utils.Error(ctx, http.StatusBadRequest, 40002, "passwords do not match")
		return
	}
	if len(req.Password) < 6 || len(req.Password) > 18 || !validPassword(req.Password) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "password must be 6-18 characters of letters, digits and -_.")
		return
	}

	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40002, "email and verification code are required")
		return
	}
	if !utils.VerifyAndConsumeCode(strings.TrimSpace(req.Email), strings.TrimSpace(req.Code)) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "verification code invalid or expired")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	// Anti-abuse: cooldown, per-IP daily limit, ban check
	ip := ctx.ClientIP()
	if utils.RegistrationIsBanned(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42920, "this IP is temporarily restricted")
		return
	}
	if !utils.RegistrationCooldownTry(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "too many attempts, slow down")
		return
	}
	if !utils.RegistrationDailyLimitCheck(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42921, "daily registration limit reached")
		return
	}

	user := models.User{
		Username:     req.Username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		RegisterIP:   ip,
	}

	if err := a.db.Create(&user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		fails := utils.RegistrationFailRecord(ip)
		if fails >= maxInt(config.Get().RegisterFailedMaxPerIPPerHour, 1) {
			utils.RegistrationBan(ip)
		}
		return
	}

	utils.RegistrationDailyIncrement(ip)

	token, err := utils.GenerateToken(user.ID, user.Username, 72*time.Hour)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  sanitizeUserResponseWithAdmin(user),
	})
}

// SendEmailCode mails a short-lived verification code for registration.
func (a *AuthController) SendEmailCode(ctx *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid email address")
		return
	}

	email := strings.TrimSpace(req.Email)
	if !utils.EmailCooldownTrySet(email, time.Minute) {
		utils.Error(ctx, http.StatusTooManyRequests, 42911, "code already sent, try again later")
		return
	}

	code := utils.GenerateVerificationCode(6)
	utils.SaveCode(email, code, 10*time.Minute)

	if err := utils.SendMail(email, "Your Emberhub verification code",
		fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code)); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to send verification email")
		return
	}

	utils.Success(ctx, gin.H{"message": "verification code sent"})
}

func validUsername(s string) bool {
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-'
		if !ok {
			return false
		}
	}
	return true
}

func validPassword(s string) bool {
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.'
		if !ok {
			return false
		}
	}
	return true
}

// Login verifies credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, 72*time.Hour)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  sanitizeUserResponseWithAdmin(user),
	})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	authHeader := ctx.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}

	token := strings.TrimSpace(parts[1])
	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	expiresAt := time.Now().Add(72 * time.Hour)
	if claims.RegisteredClaims.ExpiresAt != nil {
		expiresAt = claims.RegisteredClaims.ExpiresAt.Time
	}

	utils.BlacklistToken(token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the authenticated user's profile.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}

	utils.Success(ctx, sanitizeUserResponseWithAdmin(user))
}

// UpdateProfile allows the authenticated user to update basic profile fields.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var req struct {
		Email     string  `json:"email"`
		Bio       *string `json:"bio"`
		AvatarURL string  `json:"avatar_url"`
		CoverURL  string  `json:"cover_url"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}

	if strings.TrimSpace(req.Email) != "" {
		user.Email = strings.TrimSpace(req.Email)
	}
	if req.Bio != nil {
		// Allow clearing the bio when explicitly provided as empty string.
		bio := utils.Sanitize(strings.TrimSpace(*req.Bio))
		if len([]rune(bio)) > 255 {
			rs := []rune(bio)
			bio = string(rs[:255])
		}
		user.Bio = bio
	}
	if strings.TrimSpace(req.AvatarURL) != "" {
		user.AvatarURL = strings.TrimSpace(req.AvatarURL)
	}
	if strings.TrimSpace(req.CoverURL) != "" {
		user.CoverURL = strings.TrimSpace(req.CoverURL)
	}

	if err := a.db.Save(&user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to update profile")
		return
	}
	utils.InvalidateByPrefix("cache:user:public:" + strconv.Itoa(int(user.ID)))
	utils.InvalidateByPrefix("cache:user:public:uname:" + user.Username)

	utils.Success(ctx, sanitizeUserResponseWithAdmin(user))
}

// GetUserPublic returns the public profile for a user id, with follower counts.
func (a *AuthController) GetUserPublic(ctx *gin.Context) {
	id := strings.TrimSpace(ctx.Param("id"))
	if id == "" {
		utils.Error(ctx, http.StatusBadRequest, 40040, "missing user id")
		return
	}

	cacheKey := "cache:user:public:" + id
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(200, "application/json", b)
		return
	}

	var user models.User
	if err := a.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to load user")
		return
	}

	payload := a.publicProfile(user)
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

// GetUserPublicByUsername returns the public profile for a username.
func (a *AuthController) GetUserPublicByUsername(ctx *gin.Context) {
	username := strings.TrimSpace(ctx.Param("username"))
	if username == "" {
		utils.Error(ctx, http.StatusBadRequest, 40041, "missing username")
		return
	}

	cacheKey := "cache:user:public:uname:" + username
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(200, "application/json", b)
		return
	}

	var user models.User
	if err := a.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to load user")
		return
	}

	payload := a.publicProfile(user)
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

func (a *AuthController) publicProfile(user models.User) gin.H {
	var followers, following int64
	_ = a.db.Model(&models.Follow{}).Where("followed_id = ?", user.ID).Count(&followers).Error
	_ = a.db.Model(&models.Follow{}).Where("follower_id = ?", user.ID).Count(&following).Error

	return gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"avatar_url": user.AvatarURL,
		"cover_url":  user.CoverURL,
		"bio":        user.Bio,
		"followers":  followers,
		"following":  following,
		"created_at": user.CreatedAt,
	}
}

// ListUsers returns a paginated user listing for authenticated clients.
func (a *AuthController) ListUsers(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var users []models.User
	var total int64
	if err := a.db.Model(&models.User{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to count users")
		return
	}
	if err := a.db.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&users).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to list users")
		return
	}

	items := make([]gin.H, 0, len(users))
	for _, u := range users {
		items = append(items, sanitizeUserResponse(u))
	}
	utils.Success(ctx, gin.H{
		"items":      items,
		"pagination": paginationMeta(page, pageSize, total),
	})
}

// ToggleFollow follows the target user, or unfollows when already
// following. Self-follow is rejected; a new follow notifies the target.
func (a *AuthController) ToggleFollow(ctx *gin.Context) {
	followerID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	targetID, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("id")), 10, 32)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid user id")
		return
	}
	followedID := uint(targetID)

	if followedID == followerID {
		utils.Error(ctx, http.StatusBadRequest, 40051, "you cannot follow yourself")
		return
	}

	var target models.User
	if err := a.db.First(&target, followedID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to load user")
		return
	}

	var follow models.Follow
	err = a.db.Where("follower_id = ? AND followed_id = ?", followerID, followedID).First(&follow).Error
	if err == nil {
		if err := a.db.Delete(&follow).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to unfollow")
			return
		}
		utils.InvalidateByPrefix("cache:user:public:" + strconv.Itoa(int(followedID)))
		utils.Success(ctx, gin.H{"following": false})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to load follow state")
		return
	}

	follow = models.Follow{FollowerID: followerID, FollowedID: followedID}
	if err := a.db.Create(&follow).Error; err != nil {
		// Concurrent double-tap; treat as already following.
		if utils.IsDuplicateKeyError(err) {
			utils.Success(ctx, gin.H{"following": true})
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50052, "failed to follow")
		return
	}
	utils.InvalidateByPrefix("cache:user:public:" + strconv.Itoa(int(followedID)))

	if a.notify != nil {
		var follower models.User
		if err := a.db.First(&follower, followerID).Error; err == nil {
			_, _ = a.notify.Notify(followedID, followerID, models.NotificationFollow,
				fmt.Sprintf("%s started following you", follower.Username), nil)
		}
	}

	utils.Success(ctx, gin.H{"following": true})
}

// ListFollowers returns users following the given user.
func (a *AuthController) ListFollowers(ctx *gin.Context) {
	a.listFollowEdge(ctx, "followed_id", "follower_id")
}

// ListFollowing returns users the given user follows.
func (a *AuthController) ListFollowing(ctx *gin.Context) {
	a.listFollowEdge(ctx, "follower_id", "followed_id")
}

func (a *AuthController) listFollowEdge(ctx *gin.Context, whereCol, selectCol string) {
	id := strings.TrimSpace(ctx.Param("id"))
	if id == "" {
		utils.Error(ctx, http.StatusBadRequest, 40040, "missing user id")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var ids []uint
	if err := a.db.Model(&models.Follow{}).
		Where(whereCol+" = ?", id).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Pluck(selectCol, &ids).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50053, "failed to list follows")
		return
	}

	var total int64
	_ = a.db.Model(&models.Follow{}).Where(whereCol+" = ?", id).Count(&total).Error

	var users []models.User
	if len(ids) > 0 {
		if err := a.db.Find(&users, ids).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50054, "failed to load users")
			return
		}
	}

	items := make([]gin.H, 0, len(users))
	for _, u := range users {
		items = append(items, gin.H{
			"id":         u.ID,
			"username":   u.Username,
			"avatar_url": u.AvatarURL,
		})
	}
	utils.Success(ctx, gin.H{
		"items":      items,
		"pagination": paginationMeta(page, pageSize, total),
	})
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := ctx.Param("provider")
	cfg, err := a.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	utils.Success(ctx, gin.H{"authorization_url": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and issues a JWT.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := ctx.Param("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")

	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, 40005, "missing code or state")
		return
	}

	if !utils.ConsumeState(state) {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid or expired state")
		return
	}

	cfg, err := a.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	token, err := cfg.Exchange(context.Background(), code)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, "failed to exchange code")
		return
	}

	userInfo, err := a.fetchOAuthUser(provider, token)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50005, err.Error())
		return
	}

	user, err := a.findOrCreateOAuthUser(provider, userInfo)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to persist user")
		return
	}

	jwtToken, err := utils.GenerateToken(user.ID, user.Username, 72*time.Hour)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{"token": jwtToken, "user": sanitizeUserResponseWithAdmin(*user)})
}

func (a *AuthController) oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	switch strings.ToLower(provider) {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/github/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/google/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID          string
	Username    string
	DisplayName string
	Email       string
	AvatarURL   string
}

func (a *AuthController) fetchOAuthUser(provider string, token *oauth2.Token) (*oauthUser, error) {
	switch strings.ToLower(provider) {
	case "github":
		return fetchGitHubUser(token)
	case "google":
		return fetchGoogleUser(token)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func (a *AuthController) findOrCreateOAuthUser(provider string, data *oauthUser) (*models.User, error) {
	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", provider, data.ID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			email := strings.TrimSpace(data.Email)
			username := a.ensureUniqueUsername(data.Username, provider, data.ID)
			user = models.User{
				Username:   username,
				Email:      email,
				Provider:   provider,
				ProviderID: data.ID,
				AvatarURL:  data.AvatarURL,
				RegisterIP: "oauth",
			}

			if err := a.db.Create(&user).Error; err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	} else {
		updates := map[string]interface{}{
			"email":      strings.TrimSpace(data.Email),
			"avatar_url": data.AvatarURL,
		}
		_ = a.db.Model(&user).Updates(updates)
	}

	return &user, nil
}

func fetchGitHubUser(token *oauth2.Token) (*oauthUser, error) {
	req, _ := http.NewRequest("GET", "https://api.github.com/user", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token.AccessToken))
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github user fetch failed: %s", resp.Status)
	}

	var data struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&data); err != nil {
		return nil, err
	}

	return &oauthUser{
		ID:          strconv.FormatInt(data.ID, 10),
		Username:    data.Login,
		DisplayName: fallback(data.Name, data.Login),
		Email:       data.Email,
		AvatarURL:   data.AvatarURL,
	}, nil
}

func fetchGoogleUser(token *oauth2.Token) (*oauthUser, error) {
	req, _ := http.NewRequest("GET", "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token.AccessToken))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google user fetch failed: %s", resp.Status)
	}

	var data struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&data); err != nil {
		return nil, err
	}

	return &oauthUser{
		ID:          data.ID,
		Username:    strings.SplitN(data.Email, "@", 2)[0],
		DisplayName: fallback(data.Name, data.Email),
		Email:       data.Email,
		AvatarURL:   data.Picture,
	}, nil
}

func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return ""
	}
	var builder strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			builder.WriteRune('_')
		}
	}
	return strings.Trim(builder.String(), "_")
}

func (a *AuthController) ensureUniqueUsername(base, provider, id string) string {
	base = sanitizeUsername(base)
	if base == "" {
		base = sanitizeUsername(fmt.Sprintf("%s_%s", provider, id))
		if base == "" {
			base = fmt.Sprintf("user_%s", id)
		}
	}

	candidate := base
	suffix := 1
	for {
		var count int64
		if err := a.db.Model(&models.User{}).Where("username = ?", candidate).Count(&count).Error; err != nil {
			return candidate
		}
		if count == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
		suffix++
	}
}

func sanitizeUserResponse(user models.User) gin.H {
	return gin.H{
		"id":             user.ID,
		"username":       user.Username,
		"email":          user.Email,
		"provider":       user.Provider,
		"avatar_url":     user.AvatarURL,
		"cover_url":      user.CoverURL,
		"bio":            user.Bio,
		"points_balance": user.Points(),
		"created_at":     user.CreatedAt,
	}
}

// isAdminUsername checks whether given username is configured as an admin (case-insensitive)
func isAdminUsername(username string) bool {
	uname := strings.TrimSpace(username)
	if uname == "" {
		return false
	}
	cfg := config.Get()
	for _, u := range cfg.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), uname) {
			return true
		}
	}
	return false
}

// sanitizeUserResponseWithAdmin includes is_admin for authenticated responses
func sanitizeUserResponseWithAdmin(user models.User) gin.H {
	m := sanitizeUserResponse(user)
	m["is_admin"] = isAdminUsername(user.Username)
	return m
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
