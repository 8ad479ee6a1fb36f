package wire

// Endpoint paths, relative to the affiliate or validator base URL.
const (
	PathShortenDeepLink     = "/V1/convert-deep-link-to-short-link"
	PathCheckAffiliate      = "/V1/checkAffiliateExists"
	PathOfferCodePrefix     = "/v1/affiliateReturnOfferCode/"
	PathTrackEvent          = "/v1/trackEvent"
	PathExpectedTransaction = "/v1/api/app-store-webhook/create-expected-transaction"
	PathValidateReceipt     = "/v1/validate"
)

// Fixed values of the receipt validation payload.
const (
	ReceiptType     = "paid subscription"
	TransactionType = "android-playstore"
	OfferPlatform   = "android"
)

// CheckAffiliateRequest is the body of POST /V1/checkAffiliateExists.
type CheckAffiliateRequest struct {
	CompanyID     string `json:"companyId"`
	AffiliateCode string `json:"affiliateCode"`
}

// Object returns the request body.
func (r CheckAffiliateRequest) Object() Object {
	return Object{
		"companyId":     r.CompanyID,
		"affiliateCode": r.AffiliateCode,
	}
}

// CheckAffiliateResponse is the body returned by POST /V1/checkAffiliateExists.
type CheckAffiliateResponse struct {
	Exists    bool             `json:"exists"`
	Affiliate *AffiliateRecord `json:"affiliate,omitempty"`
}

// AffiliateRecord describes an affiliate known to the backend.
type AffiliateRecord struct {
	AffiliateName      string `json:"affiliateName"`
	AffiliateShortCode string `json:"affiliateShortCode"`
	DeeplinkURL        string `json:"deeplinkurl"`
}

// ShortLinkResponse is the body returned by the deep-link conversion endpoint.
type ShortLinkResponse struct {
	ShortLink string `json:"shortLink"`
}

// TrackEventRequest is the body of POST /v1/trackEvent.
type TrackEventRequest struct {
	EventName     string `json:"eventName"`
	CompanyID     string `json:"companyId"`
	DeepLinkParam string `json:"deepLinkParam"`
}

// Object returns the request body.
func (r TrackEventRequest) Object() Object {
	return Object{
		"eventName":     r.EventName,
		"companyId":     r.CompanyID,
		"deepLinkParam": r.DeepLinkParam,
	}
}

// ExpectedTransactionRequest is the body of the expected-transaction webhook.
// UUID carries the store purchase token.
type ExpectedTransactionRequest struct {
	UUID        string `json:"UUID"`
	CompanyCode string `json:"companyCode"`
	ShortCode   string `json:"shortCode"`
	StoredDate  string `json:"storedDate"`
}

// Object returns the request body.
func (r ExpectedTransactionRequest) Object() Object {
	return Object{
		"UUID":        r.UUID,
		"companyCode": r.CompanyCode,
		"shortCode":   r.ShortCode,
		"storedDate":  r.StoredDate,
	}
}

// ValidateReceiptRequest is the body of POST /v1/validate on the receipt validator.
type ValidateReceiptRequest struct {
	ID             string             `json:"id"`
	Type           string             `json:"type"`
	Transaction    ReceiptTransaction `json:"transaction"`
	AdditionalData AdditionalData     `json:"additionalData"`
}

// ReceiptTransaction is the store transaction being validated.
type ReceiptTransaction struct {
	Type          string `json:"type"`
	ID            string `json:"id"`
	PurchaseToken string `json:"purchaseToken"`
	Receipt       string `json:"receipt"`
	Signature     string `json:"signature"`
}

// AdditionalData ties the receipt to an affiliate identifier.
// ApplicationUsername is left out of the body when no identifier resolves.
type AdditionalData struct {
	ApplicationUsername string `json:"applicationUsername,omitempty"`
}

// Object returns the request body.
func (r ValidateReceiptRequest) Object() Object {
	return Object{
		"id":   r.ID,
		"type": r.Type,
		"transaction": Object{
			"type":          r.Transaction.Type,
			"id":            r.Transaction.ID,
			"purchaseToken": r.Transaction.PurchaseToken,
			"receipt":       r.Transaction.Receipt,
			"signature":     r.Transaction.Signature,
		},
		"additionalData": r.AdditionalData.Object(),
	}
}

// Object returns the additional data, without empty members.
func (d AdditionalData) Object() Object {
	obj := Object{}
	if d.ApplicationUsername != "" {
		obj["applicationUsername"] = d.ApplicationUsername
	}
	return obj
}
