package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cropcarry/marketplace/internal/notification"
	"github.com/cropcarry/marketplace/internal/user"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, u *user.User) (uuid.UUID, error) {
	args := m.Called(ctx, u)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, phone, address string) error {
	args := m.Called(ctx, id, phone, address)
	return args.Error(0)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUserRepository) SetOTP(ctx context.Context, id uuid.UUID, code string, expiry time.Time) error {
	args := m.Called(ctx, id, code, expiry)
	return args.Error(0)
}

func (m *MockUserRepository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type sentMail struct {
	kind      notification.Kind
	recipient string
	payload   notification.Payload
}

type recordingNotifier struct {
	sent chan sentMail
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(chan sentMail, 8)}
}

func (n *recordingNotifier) Send(_ context.Context, kind notification.Kind, recipient string, payload notification.Payload) error {
	n.sent <- sentMail{kind: kind, recipient: recipient, payload: payload}
	return nil
}

func (n *recordingNotifier) waitForMail(t *testing.T) sentMail {
	t.Helper()
	select {
	case m := <-n.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("expected a mail to be dispatched")
		return sentMail{}
	}
}

func TestUserService_SignUp_Success(t *testing.T) {
	mockRepo := new(MockUserRepository)
	notifier := newRecordingNotifier()
	userService := user.NewService(mockRepo, notifier)

	userID := uuid.Must(uuid.NewV4())
	rawPassword := "strongpassword"

	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*user.User")).
		Run(func(args mock.Arguments) {
			u := args.Get(1).(*user.User)
			u.ID = userID
		}).
		Return(userID, nil).
		Once()
	mockRepo.On("SetOTP", mock.Anything, userID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
		Return(nil).
		Once()

	createdUser, err := userService.SignUp(context.Background(), "signup@example.com", rawPassword, user.RoleConsumer, "Asha")

	require.NoError(t, err)
	require.NotNil(t, createdUser)
	require.Equal(t, userID, createdUser.ID)
	require.False(t, createdUser.IsVerified)

	err = bcrypt.CompareHashAndPassword([]byte(createdUser.PasswordHash), []byte(rawPassword))
	require.NoError(t, err, "password must be stored as a bcrypt hash")
	require.NotEqual(t, rawPassword, createdUser.PasswordHash)

	mail := notifier.waitForMail(t)
	require.Equal(t, notification.KindOTP, mail.kind)
	require.Equal(t, "signup@example.com", mail.recipient)

	mockRepo.AssertExpectations(t)
}

func TestUserService_SignUp_EmailExists(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, newRecordingNotifier())

	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*user.User")).
		Return(uuid.Nil, user.ErrEmailExists).
		Once()

	createdUser, err := userService.SignUp(context.Background(), "duplicate@example.com", "strongpassword", user.RoleFarmer, "Ravi")

	require.Error(t, err)
	require.ErrorIs(t, err, user.ErrEmailExists)
	require.Nil(t, createdUser)
	mockRepo.AssertExpectations(t)
}

func TestUserService_SignUp_InvalidRole(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, newRecordingNotifier())

	createdUser, err := userService.SignUp(context.Background(), "bad@example.com", "strongpassword", user.Role("plumber"), "Bob")

	require.Error(t, err)
	require.ErrorIs(t, err, user.ErrInvalidRole)
	require.Nil(t, createdUser)
	mockRepo.AssertNotCalled(t, "Create")
}

func TestUserService_Login_Success(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, newRecordingNotifier())

	rawPassword := "strongpassword"
	hash, err := bcrypt.GenerateFromPassword([]byte(rawPassword), bcrypt.DefaultCost)
	require.NoError(t, err)

	existing := &user.User{
		ID:           uuid.Must(uuid.NewV4()),
		Email:        "login@example.com",
		PasswordHash: string(hash),
		Role:         user.RoleConsumer,
		IsVerified:   true,
	}

	mockRepo.On("GetByEmail", mock.Anything, "login@example.com").Return(existing, nil).Once()

	foundUser, err := userService.Login(context.Background(), "login@example.com", rawPassword)

	require.NoError(t, err)
	require.Equal(t, existing.ID, foundUser.ID)
	require.True(t, foundUser.IsVerified)
	mockRepo.AssertNotCalled(t, "SetOTP")
	mockRepo.AssertExpectations(t)
}

func TestUserService_Login_WrongPassword(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, newRecordingNotifier())

	hash, err := bcrypt.GenerateFromPassword([]byte("rightpassword"), bcrypt.DefaultCost)
	require.NoError(t, err)

	existing := &user.User{
		ID:           uuid.Must(uuid.NewV4()),
		Email:        "login@example.com",
		PasswordHash: string(hash),
		IsVerified:   true,
	}

	mockRepo.On("GetByEmail", mock.Anything, "login@example.com").Return(existing, nil).Once()

	foundUser, err := userService.Login(context.Background(), "login@example.com", "wrongpassword")

	require.Error(t, err)
	require.ErrorIs(t, err, user.ErrInvalidCredentials)
	require.Nil(t, foundUser)
	mockRepo.AssertExpectations(t)
}

func TestUserService_Login_UnknownEmail(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, newRecordingNotifier())

	mockRepo.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, user.ErrNotFound).Once()

	foundUser, err := userService.Login(context.Background(), "ghost@example.com", "whatever")

	require.Error(t, err)
	require.ErrorIs(t, err, user.ErrInvalidCredentials)
	require.Nil(t, foundUser)
	mockRepo.AssertExpectations(t)
}

func TestUserService_Login_UnverifiedReissuesOTP(t *testing.T) {
	mockRepo := new(MockUserRepository)
	notifier := newRecordingNotifier()
	userService := user.NewService(mockRepo, notifier)

	rawPassword := "strongpassword"
	hash, err := bcrypt.GenerateFromPassword([]byte(rawPassword), bcrypt.DefaultCost)
	require.NoError(t, err)

	existing := &user.User{
		ID:           uuid.Must(uuid.NewV4()),
		Email:        "unverified@example.com",
		PasswordHash: string(hash),
		IsVerified:   false,
	}

	mockRepo.On("GetByEmail", mock.Anything, "unverified@example.com").Return(existing, nil).Once()
	mockRepo.On("SetOTP", mock.Anything, existing.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
		Return(nil).
		Once()

	foundUser, err := userService.Login(context.Background(), "unverified@example.com", rawPassword)

	require.NoError(t, err)
	require.False(t, foundUser.IsVerified)

	mail := notifier.waitForMail(t)
	require.Equal(t, notification.KindOTP, mail.kind)
	require.Equal(t, "unverified@example.com", mail.recipient)

	mockRepo.AssertExpectations(t)
}

func TestUserService_VerifyOTP_Success(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, newRecordingNotifier())

	userID := uuid.Must(uuid.NewV4())
	code := "123456"
	expiry := time.Now().UTC().Add(5 * time.Minute)

	existing := &user.User{
		ID:        userID,
		OTPCode:   &code,
		OTPExpiry: &expiry,
	}

	mockRepo.On("GetByID", mock.Anything, userID).Return(existing, nil).Once()
	mockRepo.On("MarkVerified", mock.Anything, userID).Return(nil).Once()

	err := userService.VerifyOTP(context.Background(), userID, "123456")

	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestUserService_VerifyOTP_WrongCode(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, newRecordingNotifier())

	userID := uuid.Must(uuid.NewV4())
	code := "123456"
	expiry := time.Now().UTC().Add(5 * time.Minute)

	existing := &user.User{
		ID:        userID,
		OTPCode:   &code,
		OTPExpiry: &expiry,
	}

	mockRepo.On("GetByID", mock.Anything, userID).Return(existing, nil).Once()

	err := userService.VerifyOTP(context.Background(), userID, "654321")

	require.Error(t, err)
	require.ErrorIs(t, err, user.ErrInvalidOTP)
	mockRepo.AssertNotCalled(t, "MarkVerified")
}

func TestUserService_VerifyOTP_Expired(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, newRecordingNotifier())

	userID := uuid.Must(uuid.NewV4())
	code := "123456"
	expiry := time.Now().UTC().Add(-time.Minute)

	existing := &user.User{
		ID:        userID,
		OTPCode:   &code,
		OTPExpiry: &expiry,
	}

	mockRepo.On("GetByID", mock.Anything, userID).Return(existing, nil).Once()

	err := userService.VerifyOTP(context.Background(), userID, "123456")

	require.Error(t, err)
	require.ErrorIs(t, err, user.ErrOTPExpired)
	mockRepo.AssertNotCalled(t, "MarkVerified")
}

func TestUserService_VerifyOTP_NoCodeIssued(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, newRecordingNotifier())

	userID := uuid.Must(uuid.NewV4())

	existing := &user.User{ID: userID}

	mockRepo.On("GetByID", mock.Anything, userID).Return(existing, nil).Once()

	err := userService.VerifyOTP(context.Background(), userID, "123456")

	require.Error(t, err)
	require.ErrorIs(t, err, user.ErrInvalidOTP)
}

func TestUserService_ResendOTP_Success(t *testing.T) {
	mockRepo := new(MockUserRepository)
	notifier := newRecordingNotifier()
	userService := user.NewService(mockRepo, notifier)

	userID := uuid.Must(uuid.NewV4())

	existing := &user.User{
		ID:    userID,
		Email: "resend@example.com",
	}

	mockRepo.On("GetByID", mock.Anything, userID).Return(existing, nil).Once()
	mockRepo.On("SetOTP", mock.Anything, userID, mock.MatchedBy(func(code string) bool {
		return len(code) == 6
	}), mock.AnythingOfType("time.Time")).
		Return(nil).
		Once()

	err := userService.ResendOTP(context.Background(), userID)

	require.NoError(t, err)

	mail := notifier.waitForMail(t)
	require.Equal(t, notification.KindOTP, mail.kind)
	require.Contains(t, mail.payload.Body, "verification code")

	mockRepo.AssertExpectations(t)
}

func TestUserService_ChangePassword_HashesBeforeStore(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, newRecordingNotifier())

	userID := uuid.Must(uuid.NewV4())
	rawPassword := "newpassword123"

	mockRepo.On("UpdatePassword", mock.Anything, userID, mock.MatchedBy(func(hash string) bool {
		return hash != rawPassword &&
			bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawPassword)) == nil
	})).
		Return(nil).
		Once()

	err := userService.ChangePassword(context.Background(), userID, rawPassword)

	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestUserService_UpdateProfile_NotFound(t *testing.T) {
	mockRepo := new(MockUserRepository)
	userService := user.NewService(mockRepo, newRecordingNotifier())

	userID := uuid.Must(uuid.NewV4())

	mockRepo.On("UpdateProfile", mock.Anything, userID, "555-0100", "12 Lake View Road").
		Return(user.ErrNotFound).
		Once()

	err := userService.UpdateProfile(context.Background(), userID, "555-0100", "12 Lake View Road")

	require.Error(t, err)
	require.ErrorIs(t, err, user.ErrNotFound)
	mockRepo.AssertExpectations(t)
}
