package models

// LineItem is a single payment or deduction row as it appears on the payslip.
type LineItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// PayslipRecord is the structured extraction result returned by the model.
// Field names mirror the JSON schema sent with the extraction request.
//
// The model is instructed that gross - totalDeductions should roughly equal
// net and that payments should sum to gross, but nothing here enforces that
// arithmetically. Callers must not assume it holds exactly.
type PayslipRecord struct {
	EmployeeName    string     `json:"employeeName"`
	EmployeeID      string     `json:"employeeId"`
	EmployerName    string     `json:"employerName"`
	PayPeriod       string     `json:"payPeriod"`
	GrossSalary     float64    `json:"grossSalary"`
	NetSalary       float64    `json:"netSalary"`
	TotalDeductions float64    `json:"totalDeductions"`
	Payments        []LineItem `json:"payments"`
	Deductions      []LineItem `json:"deductions"`
}
