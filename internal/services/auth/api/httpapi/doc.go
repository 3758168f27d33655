// Package httpapi serves the browser-facing login flow and the account and
// ban administration endpoints over echo.
package httpapi
