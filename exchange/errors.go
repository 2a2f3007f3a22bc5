package exchange

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/adshao/go-binance/v2/common"
)

// IsConnectivity 判断错误是否属于连接类错误（可有限次重试）
// 网络错误、超时、交易所网关异常视为连接类；带业务错误码的 API 拒绝不属于
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		// -1001 内部错误/断连，-1007 网关后端超时
		switch apiErr.Code {
		case -1001, -1007:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	return false
}

// IsRejection 判断错误是否属于交易所业务拒绝（不重试，直接失败）
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return !IsConnectivity(err)
	}
	return false
}
