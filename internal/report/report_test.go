package report_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cropcarry/marketplace/internal/notification"
	"github.com/cropcarry/marketplace/internal/report"
)

type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) Farmers(ctx context.Context) ([]report.Farmer, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]report.Farmer), args.Error(1)
}

func (m *MockReportRepository) SalesSince(ctx context.Context, farmerID uuid.UUID, since time.Time) ([]report.SaleLine, error) {
	args := m.Called(ctx, farmerID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]report.SaleLine), args.Error(1)
}

type sentReport struct {
	recipient string
	payload   notification.Payload
}

type recordingNotifier struct {
	sent []sentReport
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, kind notification.Kind, recipient string, payload notification.Payload) error {
	if n.err != nil {
		return n.err
	}
	if kind != notification.KindReport {
		return errors.New("unexpected notification kind")
	}
	n.sent = append(n.sent, sentReport{recipient: recipient, payload: payload})
	return nil
}

func TestBuildPDF(t *testing.T) {
	lines := []report.SaleLine{
		{ProductName: "Tomatoes", Quantity: 3, UnitPrice: 40, Total: 120},
		{ProductName: "Milk", Quantity: 2, UnitPrice: 30, Total: 60},
	}

	pdf, err := report.BuildPDF("Ravi", time.Now(), lines, 180)

	require.NoError(t, err)
	require.NotEmpty(t, pdf)
	require.Equal(t, "%PDF", string(pdf[:4]))
}

func TestGenerator_Run_SendsPerFarmerWithSales(t *testing.T) {
	mockRepo := new(MockReportRepository)
	notifier := &recordingNotifier{}
	generator := report.NewGenerator(mockRepo, notifier)

	active := report.Farmer{ID: uuid.Must(uuid.NewV4()), Name: "Ravi", Email: "ravi@example.com"}
	idle := report.Farmer{ID: uuid.Must(uuid.NewV4()), Name: "Meena", Email: "meena@example.com"}

	mockRepo.On("Farmers", mock.Anything).Return([]report.Farmer{active, idle}, nil).Once()
	mockRepo.On("SalesSince", mock.Anything, active.ID, mock.AnythingOfType("time.Time")).
		Return([]report.SaleLine{{ProductName: "Tomatoes", Quantity: 3, UnitPrice: 40, Total: 120}}, nil).
		Once()
	mockRepo.On("SalesSince", mock.Anything, idle.ID, mock.AnythingOfType("time.Time")).
		Return([]report.SaleLine{}, nil).
		Once()

	err := generator.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, notifier.sent, 1, "only farmers with sales get a report")
	require.Equal(t, "ravi@example.com", notifier.sent[0].recipient)
	require.Contains(t, notifier.sent[0].payload.Body, "Ravi")
	require.NotNil(t, notifier.sent[0].payload.Attachment)
	require.Equal(t, "Daily_Report.pdf", notifier.sent[0].payload.Attachment.Filename)
	mockRepo.AssertExpectations(t)
}

func TestGenerator_Run_ContinuesAfterFarmerError(t *testing.T) {
	mockRepo := new(MockReportRepository)
	notifier := &recordingNotifier{}
	generator := report.NewGenerator(mockRepo, notifier)

	broken := report.Farmer{ID: uuid.Must(uuid.NewV4()), Name: "Ravi", Email: "ravi@example.com"}
	healthy := report.Farmer{ID: uuid.Must(uuid.NewV4()), Name: "Meena", Email: "meena@example.com"}

	mockRepo.On("Farmers", mock.Anything).Return([]report.Farmer{broken, healthy}, nil).Once()
	mockRepo.On("SalesSince", mock.Anything, broken.ID, mock.AnythingOfType("time.Time")).
		Return(nil, errors.New("aggregate failed")).
		Once()
	mockRepo.On("SalesSince", mock.Anything, healthy.ID, mock.AnythingOfType("time.Time")).
		Return([]report.SaleLine{{ProductName: "Milk", Quantity: 2, UnitPrice: 30, Total: 60}}, nil).
		Once()

	err := generator.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, "meena@example.com", notifier.sent[0].recipient)
	mockRepo.AssertExpectations(t)
}

func TestGenerator_Run_FarmersListFails(t *testing.T) {
	mockRepo := new(MockReportRepository)
	notifier := &recordingNotifier{}
	generator := report.NewGenerator(mockRepo, notifier)

	mockRepo.On("Farmers", mock.Anything).Return(nil, errors.New("db down")).Once()

	err := generator.Run(context.Background())

	require.Error(t, err)
	require.Empty(t, notifier.sent)
	mockRepo.AssertExpectations(t)
}

func TestGenerator_Run_SendFailureDoesNotAbort(t *testing.T) {
	mockRepo := new(MockReportRepository)
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	generator := report.NewGenerator(mockRepo, notifier)

	farmer := report.Farmer{ID: uuid.Must(uuid.NewV4()), Name: "Ravi", Email: "ravi@example.com"}

	mockRepo.On("Farmers", mock.Anything).Return([]report.Farmer{farmer}, nil).Once()
	mockRepo.On("SalesSince", mock.Anything, farmer.ID, mock.AnythingOfType("time.Time")).
		Return([]report.SaleLine{{ProductName: "Tomatoes", Quantity: 1, UnitPrice: 40, Total: 40}}, nil).
		Once()

	err := generator.Run(context.Background())

	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}
