package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind identifies the class of message being sent.
type Kind string

const (
	KindReceipt      Kind = "receipt"
	KindCancellation Kind = "cancellation"
	KindOTP          Kind = "otp"
	KindReport       Kind = "report"
)

type Attachment struct {
	Filename string
	MIMEType string
	Content  []byte
}

type Payload struct {
	Subject    string
	Body       string
	Attachment *Attachment
}

// Notifier sends a message to a single recipient. Implementations are
// best-effort: callers never consult the result for business decisions.
type Notifier interface {
	Send(ctx context.Context, kind Kind, recipient string, payload Payload) error
}

// Dispatch fires a notification on its own goroutine. Errors and panics are
// logged and never reach the caller, so a failed email cannot roll back the
// state change that triggered it.
func Dispatch(n Notifier, kind Kind, recipient string, payload Payload) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error().Interface("panic_value", p).Str("kind", string(kind)).Msg("Panic recovered during notification dispatch")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := n.Send(ctx, kind, recipient, payload); err != nil {
			log.Error().Err(err).Str("kind", string(kind)).Str("recipient", recipient).Msg("Failed to send notification")
		}
	}()
}

type ReceiptLine struct {
	Name     string
	Quantity int
	Unit     string
	Price    float64
}

func ReceiptPayload(orderID string, total float64, paymentMethod string, lines []ReceiptLine) Payload {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order!\n")
	fmt.Fprintf(&b, "Order ID: %s\n", orderID)
	fmt.Fprintf(&b, "Total Amount: ₹%.2f\n", total)
	fmt.Fprintf(&b, "Payment Method: %s\n\n", paymentMethod)
	b.WriteString("Items:\n")
	for _, line := range lines {
		fmt.Fprintf(&b, "- %s: %d %s x ₹%.2f\n", line.Name, line.Quantity, line.Unit, line.Price)
	}
	b.WriteString("\nWe will notify you when it is out for delivery.")

	return Payload{
		Subject: "Order Receipt - Crop & Carry",
		Body:    b.String(),
	}
}

func CancellationPayload(orderID string, cancelledAt time.Time) Payload {
	body := fmt.Sprintf(
		"Your order has been cancelled.\n\nOrder ID: %s\nCancelled on: %s\n\nIf you have paid via UPI, the refund will be processed within 5-7 business days.",
		orderID, cancelledAt.UTC().Format("2006-01-02 15:04:05"),
	)
	return Payload{
		Subject: "Order Cancelled - Crop & Carry",
		Body:    body,
	}
}

func OTPPayload(code string) Payload {
	return Payload{
		Subject: "Crop & Carry Verification Code",
		Body:    fmt.Sprintf("Your verification code is %s", code),
	}
}

func ReportPayload(farmerName string, date time.Time, total float64, pdf []byte) Payload {
	return Payload{
		Subject: fmt.Sprintf("Daily Sales Report - %s", date.UTC().Format("2006-01-02")),
		Body: fmt.Sprintf(
			"Hello %s,\n\nPlease find attached your daily sales report.\nTotal Amount: ₹%.2f\n\nThis amount will be transferred to your account within 24 hours.",
			farmerName, total,
		),
		Attachment: &Attachment{
			Filename: "Daily_Report.pdf",
			MIMEType: "application/pdf",
			Content:  pdf,
		},
	}
}
