package server

import (
	"strconv"

	"juice-service/internal/conf"
	"juice-service/internal/service"

	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(c *conf.Bootstrap, juiceService *service.JuiceService, internalService *service.JuiceInternalService) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if c.Server != nil && c.Server.Http != nil {
		if c.Server.Http.Network != "" {
			opts = append(opts, http.Network(c.Server.Http.Network))
		}
		if c.Server.Http.Addr != "" {
			opts = append(opts, http.Address(c.Server.Http.Addr))
		}
		if c.Server.Http.Timeout != nil {
			opts = append(opts, http.Timeout(c.Server.Http.Timeout.AsDuration()))
		}
	}
	srv := http.NewServer(opts...)

	srv.Handle("/metrics", promhttp.Handler())
	registerJuiceRoutes(srv, juiceService)
	registerInternalRoutes(srv, internalService)
	return srv
}

// registerJuiceRoutes 注册面向前端/开发者的路由
func registerJuiceRoutes(srv *http.Server, s *service.JuiceService) {
	r := srv.Route("/v1")

	r.GET("/balances/{uid}", func(ctx http.Context) error {
		reply, err := s.GetBalance(ctx, ctx.Vars().Get("uid"))
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/spends", func(ctx http.Context) error {
		var req service.CreateSpendRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		reply, err := s.CreateSpend(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.GET("/spends/{spend_id}", func(ctx http.Context) error {
		reply, err := s.GetSpend(ctx, ctx.Vars().Get("spend_id"))
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.GET("/spends", func(ctx http.Context) error {
		page, pageSize := pagination(ctx)
		reply, err := s.ListSpends(ctx, ctx.Query().Get("uid"), ctx.Query().Get("status"), page, pageSize)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/cashouts", func(ctx http.Context) error {
		var req service.InitiateCashOutRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		reply, err := s.InitiateCashOut(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/cashouts/{cash_out_id}/cancel", func(ctx http.Context) error {
		var req service.CancelCashOutRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		reply, err := s.CancelCashOut(ctx, ctx.Vars().Get("cash_out_id"), req.UID)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.GET("/cashouts/{cash_out_id}", func(ctx http.Context) error {
		reply, err := s.GetCashOut(ctx, ctx.Vars().Get("cash_out_id"))
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.GET("/cashouts", func(ctx http.Context) error {
		page, pageSize := pagination(ctx)
		reply, err := s.ListCashOuts(ctx, ctx.Query().Get("uid"), ctx.Query().Get("status"), page, pageSize)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})
}

// registerInternalRoutes 注册面向支付服务商回调与运营后台的路由
func registerInternalRoutes(srv *http.Server, s *service.JuiceInternalService) {
	r := srv.Route("/internal/v1")

	r.POST("/payments/callback", func(ctx http.Context) error {
		var req service.PaymentCallbackRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		reply, err := s.PaymentCallback(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/spends/{spend_id}/process", func(ctx http.Context) error {
		reply, err := s.ProcessSpend(ctx, ctx.Vars().Get("spend_id"))
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/cashouts/{cash_out_id}/process", func(ctx http.Context) error {
		reply, err := s.ProcessCashOut(ctx, ctx.Vars().Get("cash_out_id"))
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.GET("/purchases", func(ctx http.Context) error {
		page, pageSize := pagination(ctx)
		reply, err := s.ListPurchases(ctx, ctx.Query().Get("uid"), ctx.Query().Get("status"), page, pageSize)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.GET("/stats/dashboard", func(ctx http.Context) error {
		reply, err := s.GetDashboardStats(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})
}

// pagination 从查询参数解析分页
func pagination(ctx http.Context) (int, int) {
	page, _ := strconv.Atoi(ctx.Query().Get("page"))
	pageSize, _ := strconv.Atoi(ctx.Query().Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return page, pageSize
}
