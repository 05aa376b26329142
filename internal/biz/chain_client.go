package biz

import (
	"context"

	"github.com/shopspring/decimal"
)

// TransferRequest 链上转账请求
type TransferRequest struct {
	ChainID int64
	To      string
	Amount  decimal.Decimal // 结算资产数量
	Memo    string
}

// TransferReceipt 链上转账回执
type TransferReceipt struct {
	TxHash         string
	BlockNumber    int64
	TokensReceived decimal.Decimal // 受益方实际收到的项目代币数量
}

// ChainClient 链上出账客户端接口
//
// 提交或确认失败均以 error 返回；超时语义由实现方决定，
// worker 将其当作普通失败走重试/退款路径。
type ChainClient interface {
	SubmitTransfer(ctx context.Context, req *TransferRequest) (string, error)
	WaitForConfirmation(ctx context.Context, txHash string) (*TransferReceipt, error)
}

// ChainRegistry 链客户端注册表（chain_id → client）
//
// 启动时从配置显式构建并注入结算 UseCase，不使用惰性构建的全局客户端。
type ChainRegistry struct {
	clients        map[int64]ChainClient
	defaultChainID int64
}

// NewChainRegistry 创建链客户端注册表
func NewChainRegistry(defaultChainID int64, clients map[int64]ChainClient) *ChainRegistry {
	if clients == nil {
		clients = make(map[int64]ChainClient)
	}
	return &ChainRegistry{
		clients:        clients,
		defaultChainID: defaultChainID,
	}
}

// Client 获取指定链的客户端
func (r *ChainRegistry) Client(chainID int64) (ChainClient, bool) {
	c, ok := r.clients[chainID]
	return c, ok
}

// Has 指定链是否已配置客户端
func (r *ChainRegistry) Has(chainID int64) bool {
	_, ok := r.clients[chainID]
	return ok
}

// DefaultChainID 默认结算链
func (r *ChainRegistry) DefaultChainID() int64 {
	return r.defaultChainID
}
