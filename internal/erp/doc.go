// Package erp is the REST client for ERPNext/Frappe: authenticated requests,
// retry with backoff, discriminated errors and bulk fan-out.
package erp
