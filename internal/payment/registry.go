package payment

import (
	"errors"
	"fmt"
	"sort"
)

// ErrGatewayNotRegistered 支付方式未注册网关（配置错误）
var ErrGatewayNotRegistered = errors.New("payment gateway not registered")

// Registry 支付方式到网关适配器的映射，启动时构建后只读
type Registry struct {
	gateways map[Method]Gateway
}

// NewRegistry 从显式注入的网关列表构建注册表，后注册的同名网关覆盖先前的
func NewRegistry(gateways ...Gateway) *Registry {
	registry := &Registry{gateways: make(map[Method]Gateway, len(gateways))}
	for _, gateway := range gateways {
		if gateway == nil {
			continue
		}
		registry.gateways[gateway.Method()] = gateway
	}
	return registry
}

// Lookup 按支付方式字符串查找网关
func (r *Registry) Lookup(raw string) (Gateway, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrGatewayNotRegistered, raw)
	}
	method, ok := ParseMethod(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGatewayNotRegistered, raw)
	}
	gateway, ok := r.gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGatewayNotRegistered, method)
	}
	return gateway, nil
}

// Has 是否注册了指定支付方式
func (r *Registry) Has(raw string) bool {
	_, err := r.Lookup(raw)
	return err == nil
}

// Methods 已注册的支付方式（排序后）
func (r *Registry) Methods() []Method {
	if r == nil {
		return nil
	}
	methods := make([]Method, 0, len(r.gateways))
	for method := range r.gateways {
		methods = append(methods, method)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}
