package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// User Activity Metrics
	SignupsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "app_signups_total",
		Help: "Total number of signup requests accepted.",
	})
	AccountsActivatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "app_accounts_activated_total",
		Help: "Total number of pending accounts activated by OTP verification.",
	})

	// OTP Flow Metrics
	OTPIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_otp_issued_total",
		Help: "Total number of OTP codes issued.",
	}, []string{"purpose"}) // purpose: "signup" or "login"
	OTPRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "app_otp_rate_limited_total",
		Help: "Total number of OTP sends rejected by the rate policy.",
	})
	OTPVerifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_otp_verify_total",
		Help: "Total number of OTP verification attempts.",
	}, []string{"status"}) // status: "success" or "failed"
	SMSSendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "app_sms_send_failures_total",
		Help: "Total number of SMS dispatch failures after a stored code.",
	})

	// Device Registry Metrics
	DevicesRegisteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_devices_registered_total",
		Help: "Total number of devices registered.",
	}, []string{"category"})
	DeviceEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_device_evictions_total",
		Help: "Total number of devices evicted to hold quota caps.",
	}, []string{"reason"}) // reason: "category_cap" or "total_cap"
)
