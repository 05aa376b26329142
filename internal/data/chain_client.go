package data

import (
	"context"
	"fmt"
	"time"

	"juice-service/internal/biz"
	"juice-service/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/shopspring/decimal"
)

// treasuryChainClient 金库网关 HTTP 客户端（实现 biz.ChainClient）
//
// 链上私钥与签名留在独立的金库服务里，本服务只发转账指令、轮询确认。
type treasuryChainClient struct {
	client  *http.Client
	chainID int64
	timeout time.Duration
	log     *log.Helper
}

// submitTransferRequest 金库网关转账请求
type submitTransferRequest struct {
	ChainID int64  `json:"chain_id"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
	Memo    string `json:"memo,omitempty"`
}

// submitTransferReply 金库网关转账响应
type submitTransferReply struct {
	TxHash string `json:"tx_hash"`
}

// transferStatusReply 金库网关转账状态响应
type transferStatusReply struct {
	TxHash         string `json:"tx_hash"`
	Status         string `json:"status"` // pending / confirmed / failed
	BlockNumber    int64  `json:"block_number"`
	TokensReceived string `json:"tokens_received"`
}

// NewChainClient 创建单条链的金库网关客户端
func NewChainClient(c *conf.Chain, logger log.Logger) (biz.ChainClient, error) {
	if c == nil || c.Endpoint == "" {
		return nil, fmt.Errorf("chain config is nil or missing endpoint")
	}

	timeout := c.Timeout.AsDuration()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client, err := http.NewClient(
		context.Background(),
		http.WithEndpoint(c.Endpoint),
		http.WithTimeout(timeout),
		http.WithMiddleware(
			recovery.Recovery(),
		),
	)
	if err != nil {
		return nil, err
	}

	return &treasuryChainClient{
		client:  client,
		chainID: c.ChainId,
		timeout: timeout,
		log:     log.NewHelper(logger),
	}, nil
}

// SubmitTransfer 提交链上转账，返回交易哈希
func (c *treasuryChainClient) SubmitTransfer(ctx context.Context, req *biz.TransferRequest) (string, error) {
	in := &submitTransferRequest{
		ChainID: req.ChainID,
		To:      req.To,
		Amount:  req.Amount.String(),
		Memo:    req.Memo,
	}
	var out submitTransferReply
	if err := c.client.Invoke(ctx, "POST", "/v1/transfers", in, &out); err != nil {
		c.log.Errorf("SubmitTransfer failed: chain_id=%d, to=%s, error=%v", req.ChainID, req.To, err)
		return "", err
	}
	c.log.Infof("Transfer submitted: chain_id=%d, tx_hash=%s", req.ChainID, out.TxHash)
	return out.TxHash, nil
}

// WaitForConfirmation 轮询转账状态直到确认、失败或超时
func (c *treasuryChainClient) WaitForConfirmation(ctx context.Context, txHash string) (*biz.TransferReceipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		var out transferStatusReply
		path := fmt.Sprintf("/v1/transfers/%s", txHash)
		if err := c.client.Invoke(waitCtx, "GET", path, nil, &out); err != nil {
			return nil, err
		}

		switch out.Status {
		case "confirmed":
			tokens, err := decimal.NewFromString(out.TokensReceived)
			if err != nil {
				tokens = decimal.Zero
			}
			return &biz.TransferReceipt{
				TxHash:         out.TxHash,
				BlockNumber:    out.BlockNumber,
				TokensReceived: tokens,
			}, nil
		case "failed":
			return nil, fmt.Errorf("on-chain transfer failed: tx_hash=%s", txHash)
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("confirmation timed out: tx_hash=%s: %w", txHash, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// NewChainRegistry 按配置构建链客户端注册表
//
// 单条链初始化失败只告警不阻断启动，未配置的链由结算 worker
// 在运行期按链未配置处理。
func NewChainRegistry(c *conf.Bootstrap, logger log.Logger) *biz.ChainRegistry {
	logHelper := log.NewHelper(logger)

	var defaultChainID int64
	clients := make(map[int64]biz.ChainClient)
	if c != nil && c.Juice != nil {
		defaultChainID = c.Juice.DefaultChainId
		for _, chain := range c.Juice.Chains {
			client, err := NewChainClient(chain, logger)
			if err != nil {
				logHelper.Errorf("Failed to init chain client: chain_id=%d, error=%v", chain.ChainId, err)
				continue
			}
			clients[chain.ChainId] = client
			logHelper.Infof("Chain client ready: chain_id=%d, name=%s, endpoint=%s",
				chain.ChainId, chain.Name, chain.Endpoint)
		}
	}

	return biz.NewChainRegistry(defaultChainID, clients)
}
