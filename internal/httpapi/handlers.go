package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tolvera-hq/saborpos/internal/authz"
	"github.com/tolvera-hq/saborpos/internal/billing"
	"github.com/tolvera-hq/saborpos/internal/orders"
	"github.com/tolvera-hq/saborpos/internal/platform/problem"
	"github.com/tolvera-hq/saborpos/internal/tenantctx"
)

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func requireTenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, ok := tenantctx.TenantID(r.Context())
	if !ok {
		writeProblem(w, r, problem.Authentication("no_tenant_context", "request has no tenant context"))
		return uuid.Nil, false
	}
	return tenantID, true
}

// --- Dining room ---

func (s *Server) handleTableOpen(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	tableID, err := pathUUID(r, "id")
	if err != nil {
		writeProblem(w, r, problem.Validation("invalid_id", "invalid table id"))
		return
	}
	if err := s.DiningRoom.Open(r.Context(), tenantID, tableID); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTableClose(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	tableID, err := pathUUID(r, "id")
	if err != nil {
		writeProblem(w, r, problem.Validation("invalid_id", "invalid table id"))
		return
	}
	if err := s.DiningRoom.Close(r.Context(), tenantID, tableID); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTableReserve(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	tableID, _ := pathUUID(r, "id")
	if err := s.DiningRoom.Reserve(r.Context(), tenantID, tableID); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTableCancelReservation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	tableID, _ := pathUUID(r, "id")
	if err := s.DiningRoom.CancelReservation(r.Context(), tenantID, tableID); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTableBlock(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	tableID, _ := pathUUID(r, "id")
	if err := s.DiningRoom.Block(r.Context(), tenantID, tableID); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTableUnblock(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	tableID, _ := pathUUID(r, "id")
	if err := s.DiningRoom.Unblock(r.Context(), tenantID, tableID); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transferTableRequest struct {
	ToTableID string `json:"to_table_id"`
}

func (s *Server) handleTableTransfer(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	fromID, _ := pathUUID(r, "id")
	var req transferTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	toID, err := uuid.Parse(req.ToTableID)
	if err != nil {
		writeProblem(w, r, problem.Validation("invalid_to_table_id", "invalid destination table id"))
		return
	}
	if err := s.DiningRoom.Transfer(r.Context(), tenantID, fromID, toID); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Orders ---

type createOrderRequest struct {
	SiteID     string `json:"site_id"`
	Type       string `json:"order_type"`
	TableID    string `json:"table_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}

func (s *Server) handleOrderCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	siteID, err := uuid.Parse(req.SiteID)
	if err != nil {
		writeProblem(w, r, problem.Validation("invalid_site_id", "invalid site id"))
		return
	}
	var tableID, customerID *uuid.UUID
	if req.TableID != "" {
		id, err := uuid.Parse(req.TableID)
		if err != nil {
			writeProblem(w, r, problem.Validation("invalid_table_id", "invalid table id"))
			return
		}
		tableID = &id
	}
	if req.CustomerID != "" {
		id, err := uuid.Parse(req.CustomerID)
		if err != nil {
			writeProblem(w, r, problem.Validation("invalid_customer_id", "invalid customer id"))
			return
		}
		customerID = &id
	}
	o, err := s.Orders.Create(r.Context(), tenantID, siteID, orders.OrderType(req.Type), tableID, customerID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

type addLineRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

func (s *Server) handleOrderAddLine(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	orderID, _ := pathUUID(r, "id")
	var req addLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		writeProblem(w, r, problem.Validation("invalid_item_id", "invalid item id"))
		return
	}
	line, err := s.Orders.AddLine(r.Context(), tenantID, orderID, itemID, req.Quantity, req.Notes)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

func (s *Server) handleOrderUpdateLine(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	lineID, _ := pathUUID(r, "lineID")
	var req addLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	if err := s.Orders.UpdateLine(r.Context(), tenantID, lineID, req.Quantity, req.Notes); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOrderConfirm(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	orderID, _ := pathUUID(r, "id")
	if err := s.Orders.Confirm(r.Context(), tenantID, orderID); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type voidLineRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleOrderVoidLine(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	lineID, _ := pathUUID(r, "lineID")
	var req voidLineRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	p := principalFromContext(r.Context())
	if err := s.Orders.VoidLine(r.Context(), tenantID, lineID, p.toAuthz(), req.Reason); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type applyDiscountRequest struct {
	LineID string          `json:"line_id,omitempty"`
	Type   string          `json:"discount_type"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func (s *Server) handleOrderApplyDiscount(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	orderID, _ := pathUUID(r, "id")
	var req applyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	var lineID *uuid.UUID
	if req.LineID != "" {
		id, err := uuid.Parse(req.LineID)
		if err != nil {
			writeProblem(w, r, problem.Validation("invalid_line_id", "invalid line id"))
			return
		}
		lineID = &id
	}
	p := principalFromContext(r.Context())
	if err := s.Orders.ApplyDiscount(r.Context(), tenantID, orderID, lineID, orders.DiscountType(req.Type), req.Amount, req.Reason, p.toAuthz(), p.UserID); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOrderTransfer(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	orderID, _ := pathUUID(r, "id")
	var req transferTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	toTableID, err := uuid.Parse(req.ToTableID)
	if err != nil {
		writeProblem(w, r, problem.Validation("invalid_to_table_id", "invalid destination table id"))
		return
	}
	if err := s.Orders.TransferOrder(r.Context(), tenantID, orderID, toTableID); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Billing ---

type createPaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	IdempotencyKey string          `json:"idempotency_key"`
	CardLastFour   string          `json:"card_last_four,omitempty"`
}

func (s *Server) handlePaymentCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	orderID, _ := pathUUID(r, "id")
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	result, err := s.Billing.ProcessPayment(r.Context(), tenantID, orderID, req.Amount, billing.PaymentMethod(req.Method), req.IdempotencyKey, req.CardLastFour)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handlePaymentVoid(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	paymentID, _ := pathUUID(r, "id")
	var req voidLineRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	p := principalFromContext(r.Context())
	if err := s.Billing.VoidPayment(r.Context(), tenantID, paymentID, p.toAuthz(), req.Reason); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type fiscalDocumentRequest struct {
	SiteID        string `json:"site_id"`
	Type          string `json:"document_type"`
	CustomerTaxID string `json:"customer_tax_id,omitempty"`
}

func (s *Server) handleFiscalDocumentCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	orderID, _ := pathUUID(r, "id")
	var req fiscalDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	siteID, err := uuid.Parse(req.SiteID)
	if err != nil {
		writeProblem(w, r, problem.Validation("invalid_site_id", "invalid site id"))
		return
	}
	docID, number, err := s.Billing.GenerateFiscalDocument(r.Context(), tenantID, siteID, orderID, billing.DocumentType(req.Type), req.CustomerTaxID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"document_id": docID, "document_number": number})
}

type splitBillRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleSplitBill(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	orderID, _ := pathUUID(r, "id")
	var req splitBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	splits, err := s.Billing.SplitBill(r.Context(), tenantID, orderID, req.Count)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, splits)
}

func (s *Server) handleSplitPaymentCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	splitID, _ := pathUUID(r, "id")
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	result, err := s.Billing.SettleSplit(r.Context(), tenantID, splitID, req.Amount, billing.PaymentMethod(req.Method), req.IdempotencyKey, req.CardLastFour)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleSubtotal(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	orderID, _ := pathUUID(r, "id")
	content, err := s.Billing.PrintSubtotal(r.Context(), tenantID, orderID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

// --- Customer ---

type upsertCustomerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	TaxID string `json:"tax_id,omitempty"`
}

func (s *Server) handleCustomerCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req upsertCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	c, err := s.Customer.Create(r.Context(), tenantID, req.Name, req.Phone, req.TaxID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleCustomerUpdate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	customerID, _ := pathUUID(r, "id")
	var req upsertCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	c, err := s.Customer.Update(r.Context(), tenantID, customerID, req.Name, req.Phone, req.TaxID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCustomerSearch(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	if phone := r.URL.Query().Get("phone"); phone != "" {
		c, err := s.Customer.SearchByPhone(r.Context(), tenantID, phone)
		if err != nil {
			writeProblem(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
		return
	}
	if suffix := r.URL.Query().Get("phone_suffix"); suffix != "" {
		cs, err := s.Customer.SearchByPhoneSuffix(r.Context(), tenantID, suffix)
		if err != nil {
			writeProblem(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cs)
		return
	}
	writeProblem(w, r, problem.Validation("missing_query", "phone or phone_suffix query parameter is required"))
}

func (s *Server) handleCustomerOrderHistory(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	customerID, _ := pathUUID(r, "id")
	hist, err := s.Customer.OrderHistory(r.Context(), tenantID, customerID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// --- Kitchen ---

type configurePrinterRequest struct {
	Status     string `json:"status"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

func (s *Server) handlePrinterConfigure(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	printerID, _ := pathUUID(r, "id")
	var req configurePrinterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	var redirectTo *uuid.UUID
	if req.RedirectTo != "" {
		id, err := uuid.Parse(req.RedirectTo)
		if err != nil {
			writeProblem(w, r, problem.Validation("invalid_redirect_to", "invalid redirect target id"))
			return
		}
		redirectTo = &id
	}
	p := principalFromContext(r.Context())
	if req.Status == "REDIRECT" {
		if err := authz.RequirePermission(p.toAuthz(), authz.PermRedirectPrinter); err != nil {
			writeProblem(w, r, problem.Authorization("redirect_forbidden", "configuring a printer redirect requires elevated permission"))
			return
		}
	}
	if err := s.Kitchen.ConfigurePrinter(r.Context(), tenantID, printerID, kitchenStatus(req.Status), redirectTo); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePrintJobReprint(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	jobID, _ := pathUUID(r, "id")
	p := principalFromContext(r.Context())
	if err := s.Kitchen.Reprint(r.Context(), tenantID, jobID, p.toAuthz()); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
