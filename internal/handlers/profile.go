package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/commenter/backend/internal/logging"
	"github.com/commenter/backend/internal/models"
	"github.com/commenter/backend/internal/repositories"
	"github.com/commenter/backend/internal/storage"
)

const (
	defaultMaxPictureBytes = 5 << 20
	multipartOverhead      = 64 << 10
)

// ProfileHandler serves the caller's own profile.
type ProfileHandler struct {
	Users           UserStore
	Pictures        PictureStore
	MaxPictureBytes int64
}

type profileInfo struct {
	UID         string  `json:"uid"`
	DisplayName *string `json:"displayName"`
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	Status      *string `json:"status"`
	PictureURL  *string `json:"pictureUrl"`
	HasPicFile  bool    `json:"hasPicFile"`
}

// Get handles GET /api/v1/profile.
func (h ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := loadActiveUser(w, r, h.Users)
	if !ok {
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, userResponse{User: user})
}

// Update handles POST /api/v1/profile. The body is multipart/form-data with an
// "info" JSON part and, when info.hasPicFile is set, a "file" part holding the
// new picture.
func (h ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := loadActiveUser(w, r, h.Users)
	if !ok {
		return
	}

	maxPicture := h.maxPictureBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxPicture+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "profile picture is too large")
			return
		}
		logger.Warn("invalid profile form", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "expected multipart form data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	rawInfo := r.FormValue("info")
	if rawInfo == "" {
		respondError(ctx, w, http.StatusBadRequest, "info part is required")
		return
	}

	var info profileInfo
	if err := json.Unmarshal([]byte(rawInfo), &info); err != nil {
		logger.Warn("invalid profile info", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "info part must be valid JSON")
		return
	}

	if info.UID != user.ID {
		logger.Warn("profile update for another account", "target", info.UID)
		respondError(ctx, w, http.StatusForbidden, "cannot update another account")
		return
	}

	update, msg, err := buildProfileUpdate(info)
	if err != nil {
		logger.Error("profile update failed to hash password", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}
	if msg != "" {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	if info.HasPicFile {
		url, status, msg := h.replacePicture(r, user.ID, maxPicture)
		if status != 0 {
			respondError(ctx, w, status, msg)
			return
		}
		update.PictureURL = &url
	}

	updated, err := h.Users.UpdateProfile(ctx, user.ID, update)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			respondError(ctx, w, http.StatusConflict, "email is already in use")
		case errors.Is(err, repositories.ErrNotFound):
			respondError(ctx, w, http.StatusNotFound, "account not found")
		default:
			logger.Error("profile update failed", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "failed to update profile")
		}
		return
	}

	logger.Info("profile updated", "userId", updated.ID, "picture", info.HasPicFile)
	respondJSON(ctx, w, http.StatusOK, userResponse{User: updated})
}

// replacePicture removes the caller's stored pictures and uploads the new one.
// A non-zero status reports a failure already suitable for the client.
func (h ProfileHandler) replacePicture(r *http.Request, userID string, maxPicture int64) (string, int, string) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Pictures == nil {
		return "", http.StatusServiceUnavailable, "picture uploads are not configured"
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", http.StatusBadRequest, "file part is required when hasPicFile is set"
	}
	defer file.Close()

	if header.Size > maxPicture {
		return "", http.StatusRequestEntityTooLarge, "profile picture is too large"
	}

	contentType, err := pictureContentType(file, header)
	if err != nil {
		logger.Warn("read profile picture failed", "error", err)
		return "", http.StatusBadRequest, "unable to read profile picture"
	}
	ext, ok := storage.PictureExtension(contentType)
	if !ok {
		return "", http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported picture type %q", contentType)
	}

	if _, err := h.Pictures.DeletePrefix(ctx, storage.UserPrefix(userID)); err != nil {
		logger.Error("delete old profile pictures failed", "error", err)
		return "", http.StatusBadGateway, "failed to replace profile picture"
	}

	url, err := h.Pictures.Upload(ctx, storage.ProfilePictureKey(userID, ext), file, contentType)
	if err != nil {
		logger.Error("upload profile picture failed", "error", err)
		return "", http.StatusBadGateway, "failed to upload profile picture"
	}
	return url, 0, ""
}

// pictureContentType trusts the part's declared type when present and sniffs the
// leading bytes otherwise. The file is rewound afterwards.
func pictureContentType(file multipart.File, header *multipart.FileHeader) (string, error) {
	declared := strings.TrimSpace(header.Header.Get("Content-Type"))
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}

	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(sniff[:n]), nil
}

func buildProfileUpdate(info profileInfo) (models.ProfileUpdate, string, error) {
	var update models.ProfileUpdate

	if info.DisplayName != nil {
		name := strings.TrimSpace(*info.DisplayName)
		if msg := validateDisplayName(name); msg != "" {
			return update, msg, nil
		}
		update.DisplayName = &name
	}

	if info.Email != nil {
		email := normalizeEmail(*info.Email)
		if msg := validateEmail(email); msg != "" {
			return update, msg, nil
		}
		update.Email = &email
	}

	if info.Status != nil {
		status := strings.TrimSpace(*info.Status)
		if utf8.RuneCountInString(status) > maxStatusLength {
			return update, "status must be at most 50 characters", nil
		}
		update.Status = &status
	}

	if info.PictureURL != nil && !info.HasPicFile {
		url := strings.TrimSpace(*info.PictureURL)
		update.PictureURL = &url
	}

	if info.Password != nil && *info.Password != "" {
		if msg := validatePassword(*info.Password); msg != "" {
			return update, msg, nil
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(*info.Password), bcrypt.DefaultCost)
		if err != nil {
			return update, "", err
		}
		hash := string(hashed)
		update.PasswordHash = &hash
	}

	return update, "", nil
}

func (h ProfileHandler) maxPictureBytes() int64 {
	if h.MaxPictureBytes > 0 {
		return h.MaxPictureBytes
	}
	return defaultMaxPictureBytes
}
