package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rdc-learning-api/internal/middleware"
	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/internal/service"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
	"github.com/noah-isme/rdc-learning-api/pkg/money"
)

type enrollmentServiceMock struct {
	lastReq service.EnrollRequest
	result  *service.EnrollResult
	err     error
	items   map[string]*models.Enrollment
}

func (m *enrollmentServiceMock) Enroll(ctx context.Context, req service.EnrollRequest, settings models.ReferralSettings) (*service.EnrollResult, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &service.EnrollResult{Enrollment: &models.Enrollment{ID: "e1", UserID: req.UserID, CourseID: req.CourseID}}, nil
}

func (m *enrollmentServiceMock) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.items[id]; ok {
		return e, nil
	}
	return nil, appErrors.ErrEnrollmentNotFound
}

func (m *enrollmentServiceMock) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	return []models.Enrollment{{ID: "e1", UserID: userID}}, nil
}

type settingsMock struct {
	updatedBy string
}

func (m *settingsMock) Referral(ctx context.Context) (models.ReferralSettings, error) {
	return models.ReferralSettings{ReferredDiscountPercentage: decimal.NewFromInt(10), PointsPerReferral: 10}, nil
}

func (m *settingsMock) UpdateReferral(ctx context.Context, req service.UpdateReferralSettingsRequest, actorID string) (models.ReferralSettings, error) {
	m.updatedBy = actorID
	return models.ReferralSettings{ReferredDiscountPercentage: decimal.RequireFromString(req.ReferredDiscountPercentage), PointsPerReferral: req.PointsPerReferral}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newContext(method, path string, body interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

var (
	studentClaims = &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	sellerClaims  = &models.JWTClaims{UserID: "seller-1", Role: models.RoleSeller}
)

func TestEnrollDefaultsToCaller(t *testing.T) {
	svc := &enrollmentServiceMock{}
	h := NewEnrollmentHandler(svc, &settingsMock{})
	c, w := newContext(http.MethodPost, "/enrollments", map[string]string{"course_id": "course-1", "referral_code": "RDC-1"}, studentClaims)

	h.Enroll(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "student-1", svc.lastReq.UserID)
	assert.Equal(t, "RDC-1", svc.lastReq.ReferralCode)
	assert.Equal(t, msgEnrolled, decode(t, w).Message)
}

func TestEnrollStudentCannotActForOthers(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceMock{}, &settingsMock{})
	c, w := newContext(http.MethodPost, "/enrollments", map[string]string{"course_id": "course-1", "user_id": "student-2"}, studentClaims)

	h.Enroll(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEnrollPaymentDetailsRequireStaff(t *testing.T) {
	body := map[string]interface{}{"course_id": "course-1", "payment_details": map[string]interface{}{"paid_amount": 500}}

	h := NewEnrollmentHandler(&enrollmentServiceMock{}, &settingsMock{})
	c, w := newContext(http.MethodPost, "/enrollments", body, studentClaims)
	h.Enroll(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrPaymentDetailsNotAllow.Code, decode(t, w).Error.Code)

	svc := &enrollmentServiceMock{}
	h = NewEnrollmentHandler(svc, &settingsMock{})
	body["user_id"] = "student-2"
	c, w = newContext(http.MethodPost, "/enrollments", body, sellerClaims)
	h.Enroll(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "student-2", svc.lastReq.UserID)
	require.NotNil(t, svc.lastReq.PaymentDetails)
	assert.Equal(t, money.FromMajor(500), svc.lastReq.PaymentDetails.PaidAmount)
}

func TestEnrollReportsPendingInvoice(t *testing.T) {
	svc := &enrollmentServiceMock{result: &service.EnrollResult{Enrollment: &models.Enrollment{ID: "e1"}, InvoiceError: "later"}}
	h := NewEnrollmentHandler(svc, &settingsMock{})
	c, w := newContext(http.MethodPost, "/enrollments", map[string]string{"course_id": "course-1"}, studentClaims)

	h.Enroll(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, msgEnrolledInvoicePending, decode(t, w).Message)
}

func TestEnrollMapsDomainErrors(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceMock{err: appErrors.ErrIncompleteProfile}, &settingsMock{})
	c, w := newContext(http.MethodPost, "/enrollments", map[string]string{"course_id": "course-1"}, studentClaims)

	h.Enroll(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decode(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, appErrors.ErrIncompleteProfile.Message, env.Message)
}

func TestEnrollRejectsInvalidBody(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceMock{}, &settingsMock{})
	c, w := newContext(http.MethodPost, "/enrollments", "not json", studentClaims)

	h.Enroll(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListByUserHidesOtherStudents(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceMock{}, &settingsMock{})
	c, w := newContext(http.MethodGet, "/users/student-2/enrollments", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "student-2"}}

	h.ListByUser(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext(http.MethodGet, "/users/student-1/enrollments", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "student-1"}}
	h.ListByUser(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

type prebookingServiceMock struct {
	lastReq service.PrebookRequest
	err     error
}

func (m *prebookingServiceMock) Prebook(ctx context.Context, req service.PrebookRequest) (*models.Prebooking, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Prebooking{ID: "p1", UserID: req.UserID, CourseID: req.CourseID}, nil
}

func (m *prebookingServiceMock) List(ctx context.Context, courseID string) ([]models.PrebookingDetail, error) {
	return nil, nil
}

func (m *prebookingServiceMock) ExportCSV(ctx context.Context, courseID string) ([]byte, error) {
	return []byte("Name\nRahim\n"), nil
}

func TestPrebook(t *testing.T) {
	svc := &prebookingServiceMock{}
	h := NewPrebookingHandler(svc)
	c, w := newContext(http.MethodPost, "/prebookings", map[string]string{"course_id": "course-1"}, studentClaims)

	h.Prebook(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "student-1", svc.lastReq.UserID)

	svc.err = appErrors.ErrAlreadyPrebooked
	c, w = newContext(http.MethodPost, "/prebookings", map[string]string{"course_id": "course-1"}, studentClaims)
	h.Prebook(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPrebookingExport(t *testing.T) {
	h := NewPrebookingHandler(&prebookingServiceMock{})
	c, w := newContext(http.MethodGet, "/courses/course-1/prebookings/export", nil, sellerClaims)
	c.Params = gin.Params{{Key: "id", Value: "course-1"}}

	h.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "prebookings-course-1.csv")
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
}

type invoiceServiceMock struct {
	invoice *models.Invoice
	token   string
}

func (m *invoiceServiceMock) Generate(ctx context.Context, enrollmentID string) (*models.Invoice, error) {
	return m.invoice, nil
}

func (m *invoiceServiceMock) Get(ctx context.Context, id string) (*models.Invoice, error) {
	if m.invoice == nil || m.invoice.ID != id {
		return nil, appErrors.ErrInvoiceNotFound
	}
	return m.invoice, nil
}

func (m *invoiceServiceMock) GetByEnrollment(ctx context.Context, enrollmentID string) (*models.Invoice, error) {
	return m.invoice, nil
}

func (m *invoiceServiceMock) Link(ctx context.Context, invoice *models.Invoice) (*service.InvoiceLink, error) {
	return &service.InvoiceLink{Token: "tok/en", ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (m *invoiceServiceMock) Download(ctx context.Context, token string) ([]byte, string, error) {
	if token != m.token {
		return nil, "", appErrors.ErrInvalidDownloadToken
	}
	return []byte("%PDF"), m.invoice.InvoiceNumber + ".pdf", nil
}

func newInvoiceHandler() (*InvoiceHandler, *invoiceServiceMock) {
	inv := &models.Invoice{ID: "inv-1", UserID: "student-1", EnrollmentID: "e1", InvoiceNumber: "RDC-INV-202603-1234"}
	svc := &invoiceServiceMock{invoice: inv, token: "valid"}
	enrollments := &enrollmentServiceMock{items: map[string]*models.Enrollment{"e1": {ID: "e1", UserID: "student-1"}}}
	return NewInvoiceHandler(svc, enrollments, "/api/v1/invoices/download"), svc
}

func TestInvoiceOwnership(t *testing.T) {
	h, _ := newInvoiceHandler()

	c, w := newContext(http.MethodGet, "/invoices/inv-1", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "inv-1"}}
	h.Get(c)
	assert.Equal(t, http.StatusOK, w.Code)

	other := &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent}
	c, w = newContext(http.MethodGet, "/invoices/inv-1", nil, other)
	c.Params = gin.Params{{Key: "id", Value: "inv-1"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newContext(http.MethodPost, "/invoices", map[string]string{"enrollment_id": "e1"}, other)
	h.Create(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newContext(http.MethodPost, "/invoices", map[string]string{"enrollment_id": "e1"}, sellerClaims)
	h.Create(c)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestInvoiceLinkAndDownload(t *testing.T) {
	h, _ := newInvoiceHandler()

	c, w := newContext(http.MethodGet, "/invoices/inv-1/link", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "inv-1"}}
	h.Link(c)
	require.Equal(t, http.StatusOK, w.Code)
	var link struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &link))
	assert.Equal(t, "/api/v1/invoices/download?token=tok%2Fen", link.URL)

	c, w = newContext(http.MethodGet, "/invoices/download?token=valid", nil, nil)
	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "RDC-INV-202603-1234.pdf")

	c, w = newContext(http.MethodGet, "/invoices/download?token=forged", nil, nil)
	h.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateReferralSettingsRecordsActor(t *testing.T) {
	svc := &settingsMock{}
	h := NewConfigurationHandler(svc)
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	c, w := newContext(http.MethodPut, "/settings/referral", map[string]interface{}{"referred_discount_percentage": "15", "points_per_referral": 20}, admin)

	h.UpdateReferral(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", svc.updatedBy)
	assert.Contains(t, string(decode(t, w).Data), `"points_per_referral":20`)
}

func TestReadyReportsFailingDependency(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"database": func(ctx context.Context) error { return nil },
		"cache":    func(ctx context.Context) error { return errors.New("connection refused") },
	})
	c, w := newContext(http.MethodGet, "/ready", nil, nil)

	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
