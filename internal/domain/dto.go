package domain

import "time"

// ---- /config --------------------------------------------------------

type CurrencySpecification struct {
	Name                          string   `json:"name"`
	NumFractionalInputDigits      int      `json:"num_fractional_input_digits"`
	NumFractionalNormalDigits     int      `json:"num_fractional_normal_digits"`
	NumFractionalTrailingZeroDigits int    `json:"num_fractional_trailing_zero_digits"`
	AltUnitNames                 map[string]string `json:"alt_unit_names"`
}

type ConfigResponse struct {
	BankName                string                 `json:"bank_name"`
	BaseURL                 string                 `json:"base_url,omitempty"`
	Currency                string                 `json:"currency"`
	CurrencySpecification   CurrencySpecification  `json:"currency_specification"`
	AllowConversion         bool                   `json:"allow_conversion"`
	AllowRegistrations      bool                   `json:"allow_registrations"`
	AllowDeletions          bool                   `json:"allow_deletions"`
	DefaultDebitThreshold   string                 `json:"default_debit_threshold"`
	SupportedTanChannels    []TanChannel           `json:"supported_tan_channels"`
	AllowEditName           bool                   `json:"allow_edit_name"`
	AllowEditCashoutPaytoURI bool                  `json:"allow_edit_cashout_payto_uri"`
	WireType                string                 `json:"wire_type"`
}

// ---- accounts --------------------------------------------------------

type RegisterAccountRequest struct {
	Login           string  `json:"username"`
	Password        string  `json:"password"`
	Name            string  `json:"name"`
	IsPublic        bool    `json:"is_public"`
	IsTalerExchange bool    `json:"is_taler_exchange"`
	InternalPaytoURI string `json:"internal_payto_uri,omitempty"`
	CashoutPaytoURI string  `json:"cashout_payto_uri,omitempty"`
	ContactEmail    string  `json:"contact_email,omitempty"`
	ContactPhone    string  `json:"phone,omitempty"`
	DebitThreshold  string  `json:"debit_threshold,omitempty"`
	MinCashout      string  `json:"min_cashout,omitempty"`
	TanChannel      string  `json:"tan_channel,omitempty"`
}

type RegisterAccountResponse struct {
	InternalPaytoURI string `json:"internal_payto_uri"`
}

type AccountPatchRequest struct {
	Name            Option[string] `json:"name"`
	CashoutPaytoURI Option[string] `json:"cashout_payto_uri"`
	ContactEmail    Option[string] `json:"contact_email"`
	ContactPhone    Option[string] `json:"phone"`
	IsPublic        Option[bool]   `json:"is_public"`
	DebitThreshold  Option[string] `json:"debit_threshold"`
	MinCashout      Option[string] `json:"min_cashout"`
	TanChannel      Option[string] `json:"tan_channel"`
	IsTalerExchange Option[bool]   `json:"is_taler_exchange"`
}

type AccountAuthPatchRequest struct {
	OldPassword string `json:"old_password,omitempty"`
	NewPassword string `json:"new_password"`
}

type AccountData struct {
	Login            string  `json:"username"`
	Name             string  `json:"name"`
	InternalPaytoURI string  `json:"internal_payto_uri"`
	CashoutPaytoURI  string  `json:"cashout_payto_uri,omitempty"`
	ContactEmail     string  `json:"contact_email,omitempty"`
	ContactPhone     string  `json:"phone,omitempty"`
	Balance          BalanceDTO `json:"balance"`
	DebitThreshold   string  `json:"debit_threshold"`
	IsPublic         bool    `json:"is_public"`
	IsTalerExchange  bool    `json:"is_taler_exchange"`
	MinCashout       string  `json:"min_cashout,omitempty"`
	TanChannel       string  `json:"tan_channel,omitempty"`
}

type BalanceDTO struct {
	Amount  string `json:"amount"`
	Credit  bool   `json:"credit_debit_indicator"`
}

type PublicAccountsResponse struct {
	Accounts []PublicAccountEntry `json:"accounts"`
}

type PublicAccountEntry struct {
	Login            string `json:"username"`
	Name             string `json:"name"`
	InternalPaytoURI string `json:"internal_payto_uri"`
}

// ---- tokens ------------------------------------------------------------

type TokenCreateRequest struct {
	Scope      TokenScope `json:"scope"`
	Duration   *int64     `json:"duration,omitempty"` // seconds; nil = server default
	Refreshable bool      `json:"refreshable"`
}

type TokenSuccessResponse struct {
	AccessToken string    `json:"access_token"`
	Expiration  time.Time `json:"expiration"`
}

// ---- transactions ------------------------------------------------------

type CreateTransactionRequest struct {
	PaytoURI       string `json:"payto_uri"`
	Amount         string `json:"amount"`
	Subject        string `json:"subject,omitempty"`
	RequestUID     string `json:"request_uid,omitempty"`
}

type CreateTransactionResponse struct {
	RowID int64 `json:"row_id"`
}

type BankAccountTransactionInfo struct {
	RowID         int64     `json:"row_id"`
	Amount        string    `json:"amount"`
	Subject       string    `json:"subject"`
	Direction     string    `json:"direction"` // "debit" | "credit"
	CounterpartyPaytoURI string `json:"counterparty_payto_uri"`
	Timestamp     time.Time `json:"date"`
}

type TransactionsHistoryResponse struct {
	Transactions []BankAccountTransactionInfo `json:"transactions"`
}

type HistoryParams struct {
	Start       int64
	Delta       int64
	LongPollMs  int64
}

// ---- withdrawals ---------------------------------------------------------

type WithdrawalCreateRequest struct {
	Amount string `json:"amount"`
}

type WithdrawalCreateResponse struct {
	WithdrawalID     string `json:"withdrawal_id"`
	TalerWithdrawURI string `json:"taler_withdraw_uri"`
}

type WithdrawalStatus struct {
	WithdrawalID     string `json:"withdrawal_id"`
	Amount           string `json:"amount"`
	Aborted          bool   `json:"aborted"`
	Confirmed        bool   `json:"confirmation_done"`
	Selected         bool   `json:"selection_done"`
	SelectedExchange string `json:"selected_exchange_account,omitempty"`
	ReservePub       string `json:"selected_reserve_pub,omitempty"`
}

type WithdrawalSelectRequest struct {
	ReservePub      string `json:"reserve_pub"`
	SelectedExchange string `json:"selected_exchange"`
}

type WithdrawalConfirmRequest struct {
	// empty body in the usual case; TAN confirmation rides on challenge flow
}

// ---- cashouts ------------------------------------------------------------

type CashoutCreateRequest struct {
	RequestUID  string `json:"request_uid"`
	AmountDebit string `json:"amount_debit"`
	AmountCredit string `json:"amount_credit"`
	Subject     string `json:"subject,omitempty"`
	TanChannel  string `json:"tan_channel,omitempty"`
}

type CashoutCreateResponse struct {
	CashoutID int64 `json:"cashout_id"`
}

type CashoutStatusResponse struct {
	CashoutID   int64  `json:"cashout_id"`
	AmountDebit string `json:"amount_debit"`
	AmountCredit string `json:"amount_credit"`
	Subject     string `json:"subject"`
	CreationTime time.Time `json:"creation_time"`
	Status      CashoutState `json:"status"`
}

type CashoutsListResponse struct {
	Cashouts []CashoutStatusResponse `json:"cashouts"`
}

// ---- challenges / TAN -----------------------------------------------------

type ChallengeSentResponse struct {
	ChallengeID int64 `json:"challenge_id"`
}

type ChallengeConfirmRequest struct {
	TAN string `json:"tan"`
}

// TanTransmission is returned (HTTP 202) whenever a sensitive operation is
// attempted without a prior solved challenge.
type TanTransmission struct {
	ChallengeID int64      `json:"challenge_id"`
	TanChannel  TanChannel `json:"tan_info"`
}

// ---- wire gateway ----------------------------------------------------------

type WireGatewayConfigResponse struct {
	Currency string `json:"currency"`
}

type TransferRequest struct {
	RequestUID      string `json:"request_uid"`
	Amount          string `json:"amount"`
	ExchangeBaseURL string `json:"exchange_base_url"`
	WTID            string `json:"wtid"`
	CreditAccount   string `json:"credit_account"` // payto URI
}

type TransferResponse struct {
	TimeStamp time.Time `json:"timestamp"`
	RowID     int64     `json:"row_id"`
}

type AddIncomingRequest struct {
	Amount         string `json:"amount"`
	ReservePub     string `json:"reserve_pub"`
	DebitAccount   string `json:"debit_account"` // payto URI
}

type AddIncomingResponse struct {
	TimeStamp time.Time `json:"timestamp"`
	RowID     int64     `json:"row_id"`
}

type IncomingHistoryEntry struct {
	RowID        int64     `json:"row_id"`
	DateTime     time.Time `json:"date"`
	Amount       string    `json:"amount"`
	DebitAccount string    `json:"debit_account"`
	ReservePub   string    `json:"reserve_pub"`
}

type IncomingHistoryResponse struct {
	IncomingTransactions []IncomingHistoryEntry `json:"incoming_transactions"`
}

type OutgoingHistoryEntry struct {
	RowID         int64     `json:"row_id"`
	DateTime      time.Time `json:"date"`
	Amount        string    `json:"amount"`
	CreditAccount string    `json:"credit_account"`
	WTID          string    `json:"wtid"`
	ExchangeBaseURL string  `json:"exchange_base_url"`
}

type OutgoingHistoryResponse struct {
	OutgoingTransactions []OutgoingHistoryEntry `json:"outgoing_transactions"`
}

// ---- conversion ----------------------------------------------------------

type ConversionConfigResponse struct {
	CashinRatio  string `json:"cashin_ratio"`
	CashoutRatio string `json:"cashout_ratio"`
	CashinFee    string `json:"cashin_fee"`
	CashoutFee   string `json:"cashout_fee"`
	CashinMin    string `json:"cashin_min_amount"`
	CashoutMin   string `json:"cashout_min_amount"`
	CashinTiny   string `json:"cashin_tiny_amount"`
	CashoutTiny  string `json:"cashout_tiny_amount"`
	RoundingMode RoundingMode `json:"rounding_mode"`
}

type ConversionRateQuoteResponse struct {
	AmountCredit string `json:"amount_credit"`
	AmountDebit  string `json:"amount_debit"`
}

type ConversionRateUpdateRequest struct {
	CashinRatio  string       `json:"cashin_ratio"`
	CashoutRatio string       `json:"cashout_ratio"`
	CashinFee    string       `json:"cashin_fee"`
	CashoutFee   string       `json:"cashout_fee"`
	CashinMin    string       `json:"cashin_min_amount"`
	CashoutMin   string       `json:"cashout_min_amount"`
	CashinTiny   string       `json:"cashin_tiny_amount"`
	CashoutTiny  string       `json:"cashout_tiny_amount"`
	RoundingMode RoundingMode `json:"rounding_mode"`
}
