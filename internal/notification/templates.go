package notification

import (
	"strings"

	"github.com/modubeauty/modu/internal/errs"
)

// Template IDs understood by the renderer. Producers reference these by
// string so the set here is the single source of truth.
const (
	TemplateReferralCommission         = "referral_commission"
	TemplateReservationConfirmed       = "reservation_confirmed"
	TemplateReservationCancelledByShop = "reservation_cancelled_by_shop"
	TemplateReservationExpired         = "reservation_expired"
	TemplatePaymentApproved            = "payment_approved"
	TemplatePointsExpiring             = "points_expiring"
)

type template struct {
	Title string
	Body  string
}

// Placeholders use {name} syntax and are replaced from the notification's
// params map. Unreplaced placeholders are left in place so a missing param
// is visible in the delivered text rather than silently blank.
var templates = map[string]template{
	TemplateReferralCommission: {
		Title: "포인트 적립",
		Body:  "{name} 님 덕분에 +{amount} point",
	},
	TemplateReservationConfirmed: {
		Title: "예약 확정",
		Body:  "{shopName} 예약이 확정되었습니다. {datetime}",
	},
	TemplateReservationCancelledByShop: {
		Title: "예약 취소",
		Body:  "{shopName} 사정으로 예약이 취소되었습니다. 사용한 포인트는 환불되었습니다.",
	},
	TemplateReservationExpired: {
		Title: "예약 요청 만료",
		Body:  "{shopName} 예약 요청에 응답이 없어 만료되었습니다.",
	},
	TemplatePaymentApproved: {
		Title: "결제 완료",
		Body:  "{amount}원 결제가 완료되었습니다.",
	},
	TemplatePointsExpiring: {
		Title: "포인트 소멸 예정",
		Body:  "{amount} 포인트가 {date}에 소멸됩니다. 잊지 말고 사용하세요!",
	},
}

// Render produces the title and body for a template, substituting params.
// Unknown template IDs are a permanent error; the worker will not retry.
func Render(templateID string, params map[string]string) (title, body string, err error) {
	tmpl, ok := templates[templateID]
	if !ok {
		return "", "", errs.Ef(errs.KindValidation, "unknown notification template %q", templateID)
	}
	return substitute(tmpl.Title, params), substitute(tmpl.Body, params), nil
}

func substitute(s string, params map[string]string) string {
	if len(params) == 0 {
		return s
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
