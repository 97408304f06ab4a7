package services

import (
	"golang.org/x/crypto/bcrypt"

	"livepoll-backend/internal/middleware"
	"livepoll-backend/internal/models"
)

// TeacherAuthService hands out teacher tokens. With no passcode hash
// configured anyone may become the teacher, matching a single-classroom
// deployment.
type TeacherAuthService struct {
	jwt          *middleware.JWTAuth
	passcodeHash []byte
}

func NewTeacherAuthService(jwt *middleware.JWTAuth, passcodeHash string) *TeacherAuthService {
	s := &TeacherAuthService{jwt: jwt}
	if passcodeHash != "" {
		s.passcodeHash = []byte(passcodeHash)
	}
	return s
}

func (s *TeacherAuthService) IssueTeacherToken(passcode string) (*models.TokenResponse, error) {
	if s.passcodeHash != nil {
		if passcode == "" {
			return nil, newValidationError("passcode", "Passcode is required")
		}
		if err := bcrypt.CompareHashAndPassword(s.passcodeHash, []byte(passcode)); err != nil {
			return nil, &UnauthorizedError{Message: "Invalid passcode"}
		}
	}

	token, err := s.jwt.GenerateTeacherToken()
	if err != nil {
		return nil, err
	}
	return &models.TokenResponse{
		Token:     token,
		ExpiresIn: int(middleware.TeacherTokenTTL.Seconds()),
	}, nil
}
