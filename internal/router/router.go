package router

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"seckill/internal/cache"
	"seckill/internal/config"
	"seckill/internal/middleware"
	"seckill/internal/model"
	"seckill/internal/service"
	"seckill/pkg/logger"
	"seckill/pkg/validator"
)

// Deps 路由依赖的服务。
type Deps struct {
	Shops    *service.ShopService
	Vouchers *service.VoucherService
	Orders   *service.VoucherOrderService
	Users    *service.UserService
	RDB      rd.Cmdable
	Config   config.AppConfig
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) error {
	if err := validator.RegisterBindingRules(); err != nil {
		return err
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.RefreshToken(d.Users))
	admin := middleware.RequireAdmin(d.Config.AdminToken)

	// Shop
	api.GET("/shop/:id", queryShop(d.Shops))
	api.PUT("/shop", admin, updateShop(d.Shops))
	api.POST("/shop/warmup/:id", admin, warmupShop(d.Shops, d.Config.Cache.LogicalTTL))

	// Voucher
	api.POST("/voucher/seckill", admin, addSeckillVoucher(d.Vouchers))
	api.GET("/voucher/:id", queryVoucher(d.Vouchers))

	// Seckill
	api.POST("/voucher-order/seckill/:id",
		middleware.RequireLogin(),
		middleware.RedisRateLimit(d.RDB, d.Config.Seckill.RateLimit, d.Config.Seckill.RateWindow),
		seckillVoucher(d.Orders))

	// User
	api.POST("/user/code", sendCode(d.Users))
	api.POST("/user/login", login(d.Users))
	api.GET("/user/me", middleware.RequireLogin(), me())
	return nil
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"code": status, "msg": msg})
}

// failErr 把业务哨兵错误映射成状态码，其余按 500 处理。
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cache.ErrNotFound):
		fail(c, http.StatusNotFound, "数据不存在")
	case errors.Is(err, cache.ErrLockTimeout):
		fail(c, http.StatusServiceUnavailable, "系统繁忙，请稍后再试")
	case errors.Is(err, service.ErrInvalidPhone),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrShopIDRequired),
		errors.Is(err, service.ErrInvalidSaleWindow),
		errors.Is(err, service.ErrInvalidStock):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		logger.WithModule("http").Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

func parseID(c *gin.Context) (uint, bool) {
	// 32 bit 十进制
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, "id 无效")
		return 0, false
	}
	return uint(id), true
}

// queryShop 按部署配置的缓存策略读取店铺。
func queryShop(shops *service.ShopService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		shop, err := shops.Query(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				fail(c, http.StatusNotFound, "店铺不存在")
				return
			}
			failErr(c, err)
			return
		}
		ok(c, shop)
	}
}

// updateShop 先写库再删缓存。
func updateShop(shops *service.ShopService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var shop model.Shop
		if err := c.ShouldBindJSON(&shop); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		if err := shops.Update(c.Request.Context(), &shop); err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				fail(c, http.StatusNotFound, "店铺不存在")
				return
			}
			failErr(c, err)
			return
		}
		ok(c, nil)
	}
}

// warmupShop 写入逻辑过期缓存，logical 策略下查询前必须先预热。
func warmupShop(shops *service.ShopService, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		if err := shops.SaveShop2Redis(c.Request.Context(), id, ttl); err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				fail(c, http.StatusNotFound, "店铺不存在")
				return
			}
			failErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "预热成功"})
	}
}

// addSeckillVoucher 创建秒杀券（含时间窗校验）。
func addSeckillVoucher(vouchers *service.VoucherService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ShopID      uint   `json:"shop_id" binding:"required,min=1"`
			Title       string `json:"title" binding:"required"`
			SubTitle    string `json:"sub_title"`
			Rules       string `json:"rules"`
			PayValue    int64  `json:"pay_value" binding:"min=0"`
			ActualValue int64  `json:"actual_value" binding:"min=0"`
			Stock       int64  `json:"stock" binding:"required,min=1"`
			BeginTime   string `json:"begin_time" binding:"required"`
			EndTime     string `json:"end_time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		begin, err := time.Parse(time.RFC3339, req.BeginTime)
		if err != nil {
			fail(c, http.StatusBadRequest, "begin_time 格式错误，请用 RFC3339")
			return
		}
		end, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			fail(c, http.StatusBadRequest, "end_time 格式错误，请用 RFC3339")
			return
		}
		v := &model.Voucher{
			ShopID:      req.ShopID,
			Title:       req.Title,
			SubTitle:    req.SubTitle,
			Rules:       req.Rules,
			PayValue:    req.PayValue,
			ActualValue: req.ActualValue,
			Status:      1,
			Stock:       req.Stock,
			BeginTime:   begin,
			EndTime:     end,
		}
		if err := vouchers.AddSeckillVoucher(c.Request.Context(), v); err != nil {
			failErr(c, err)
			return
		}
		ok(c, v)
	}
}

func queryVoucher(vouchers *service.VoucherService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		v, err := vouchers.QueryByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				fail(c, http.StatusNotFound, "优惠券不存在")
				return
			}
			failErr(c, err)
			return
		}
		ok(c, v)
	}
}

// seckillVoucher 秒杀下单入口，用户来自登录态。
// 订单号超出 JS 安全整数范围，同时返回字符串形式。
func seckillVoucher(orders *service.VoucherOrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c)
		if !valid {
			return
		}
		user := middleware.CurrentUser(c)

		res, err := orders.SeckillVoucher(c.Request.Context(), id, user.ID)
		if err != nil {
			failErr(c, err)
			return
		}
		switch res.Status {
		case service.SeckillSuccess:
			ok(c, gin.H{
				"order_id":     res.OrderID,
				"order_id_str": strconv.FormatInt(res.OrderID, 10),
			})
		case service.SeckillVoucherNotFound:
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "msg": res.Reason, "data": gin.H{"status": res.Status}})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": res.Reason, "data": gin.H{"status": res.Status}})
		}
	}
}

func sendCode(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := users.SendCode(c.Request.Context(), c.Query("phone")); err != nil {
			failErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "验证码已发送"})
	}
}

func login(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Phone string `json:"phone" binding:"required,phone"`
			Code  string `json:"code" binding:"required,len=6,numeric"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		token, err := users.Login(c.Request.Context(), req.Phone, req.Code)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, gin.H{"token": token})
	}
}

func me() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok(c, middleware.CurrentUser(c))
	}
}
