package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"seckill/internal/cache"
	"seckill/internal/config"
	"seckill/internal/database/testutil"
	"seckill/internal/middleware"
	"seckill/internal/model"
	"seckill/internal/service"
	rediskey "seckill/pkg/redis"
)

const adminToken = "test-admin"

type env struct {
	r     *gin.Engine
	db    *gorm.DB
	mr    *miniredis.Miniredis
	users *service.UserService
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func newEnv(t *testing.T) env {
	t.Helper()
	return newEnvWithStrategy(t, service.ShopPassThrough)
}

func newEnvWithStrategy(t *testing.T, strategy service.ShopStrategy) env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	mr, rdb := testutil.MustStartRedis(t)
	sched := cache.NewScheduler(2, 8)
	t.Cleanup(sched.Close)
	c := cache.NewClient(rdb, sched)

	cfg := config.AppConfig{AdminToken: adminToken}
	cfg.Cache.LogicalTTL = 30 * time.Minute
	cfg.Seckill.RateLimit = 100
	cfg.Seckill.RateWindow = time.Second

	users := service.NewUserService(db, rdb, 2*time.Minute, time.Hour)
	r := gin.New()
	require.NoError(t, Setup(r, Deps{
		Shops:    service.NewShopService(db, c, strategy, 30*time.Minute, 30*time.Minute),
		Vouchers: service.NewVoucherService(db, c, 30*time.Minute),
		Orders:   service.NewVoucherOrderService(db, rdb, rediskey.NewIDWorker(rdb), nil, 5*time.Second),
		Users:    users,
		RDB:      rdb,
		Config:   cfg,
	}))
	return env{r: r, db: db, mr: mr, users: users}
}

func (e env) do(t *testing.T, method, path string, body any, header map[string]string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)

	var out envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func (e env) login(t *testing.T, phone string) string {
	t.Helper()
	code, err := e.users.SendCode(context.Background(), phone)
	require.NoError(t, err)
	token, err := e.users.Login(context.Background(), phone, code)
	require.NoError(t, err)
	return token
}

func TestPing(t *testing.T) {
	e := newEnv(t)
	status, out := e.do(t, http.MethodGet, "/ping", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "pong", out.Msg)
}

func shopName(t *testing.T, out envelope) string {
	t.Helper()
	var got model.Shop
	require.NoError(t, json.Unmarshal(out.Data, &got))
	return got.Name
}

func TestShopRoutes(t *testing.T) {
	e := newEnv(t)
	admin := map[string]string{"X-Admin-Token": adminToken}
	shop := &model.Shop{Name: "海底捞", TypeID: 1}
	require.NoError(t, e.db.Create(shop).Error)
	path := fmt.Sprintf("/api/shop/%d", shop.ID)
	warmPath := fmt.Sprintf("/api/shop/warmup/%d", shop.ID)

	// 预热写入逻辑过期包装后，默认策略仍然读到完整店铺
	status, _ := e.do(t, http.MethodPost, warmPath, nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	status, _ = e.do(t, http.MethodPost, warmPath, nil, admin)
	require.Equal(t, http.StatusOK, status)

	status, out := e.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "海底捞", shopName(t, out))

	status, out = e.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "海底捞", shopName(t, out))

	status, _ = e.do(t, http.MethodGet, "/api/shop/9999", nil, nil)
	require.Equal(t, http.StatusNotFound, status)
	status, _ = e.do(t, http.MethodGet, "/api/shop/abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)

	// 更新需要管理员令牌，成功后缓存被删除
	update := map[string]any{"id": shop.ID, "name": "海底捞火锅"}
	status, _ = e.do(t, http.MethodPut, "/api/shop", update, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	status, _ = e.do(t, http.MethodPut, "/api/shop", update, admin)
	require.Equal(t, http.StatusOK, status)
	require.False(t, e.mr.Exists(rediskey.ShopCacheKey(shop.ID)))
	status, out = e.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "海底捞火锅", shopName(t, out))

	status, _ = e.do(t, http.MethodPut, "/api/shop", map[string]any{"name": "x"}, admin)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestShopRoutesLogicalStrategy(t *testing.T) {
	e := newEnvWithStrategy(t, service.ShopLogicalExpire)
	admin := map[string]string{"X-Admin-Token": adminToken}
	shop := &model.Shop{Name: "太二酸菜鱼", TypeID: 1}
	require.NoError(t, e.db.Create(shop).Error)
	path := fmt.Sprintf("/api/shop/%d", shop.ID)

	// 逻辑过期未预热不回源
	status, _ := e.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/shop/warmup/%d", shop.ID), nil, admin)
	require.Equal(t, http.StatusOK, status)
	status, out := e.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "太二酸菜鱼", shopName(t, out))

	status, _ = e.do(t, http.MethodPut, "/api/shop", map[string]any{"id": shop.ID, "name": "太二"}, admin)
	require.Equal(t, http.StatusOK, status)
	status, out = e.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "太二", shopName(t, out))
}

func TestUserRoutes(t *testing.T) {
	e := newEnv(t)

	status, _ := e.do(t, http.MethodPost, "/api/user/code?phone=123", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = e.do(t, http.MethodPost, "/api/user/code?phone=13800000001", nil, nil)
	require.Equal(t, http.StatusOK, status)

	code, err := e.mr.Get(rediskey.LoginCodeKey + "13800000001")
	require.NoError(t, err)

	status, _ = e.do(t, http.MethodPost, "/api/user/login", gin.H{"phone": "not-a-phone", "code": code}, nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, out := e.do(t, http.MethodPost, "/api/user/login", gin.H{"phone": "13800000001", "code": code}, nil)
	require.Equal(t, http.StatusOK, status)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &data))
	require.NotEmpty(t, data.Token)

	status, _ = e.do(t, http.MethodGet, "/api/user/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	status, out = e.do(t, http.MethodGet, "/api/user/me", nil, map[string]string{middleware.AuthorizationHeader: data.Token})
	require.Equal(t, http.StatusOK, status)
	var me model.UserDTO
	require.NoError(t, json.Unmarshal(out.Data, &me))
	require.NotZero(t, me.ID)
}

func TestSeckillRoutes(t *testing.T) {
	e := newEnv(t)
	admin := map[string]string{"X-Admin-Token": adminToken}
	now := time.Now()

	voucher := gin.H{
		"shop_id":    1,
		"title":      "100元代金券",
		"pay_value":  8000,
		"stock":      1,
		"begin_time": now.Add(-time.Hour).Format(time.RFC3339),
		"end_time":   now.Add(time.Hour).Format(time.RFC3339),
	}
	status, _ := e.do(t, http.MethodPost, "/api/voucher/seckill", voucher, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	status, out := e.do(t, http.MethodPost, "/api/voucher/seckill", voucher, admin)
	require.Equal(t, http.StatusOK, status)
	var created model.Voucher
	require.NoError(t, json.Unmarshal(out.Data, &created))
	require.NotZero(t, created.ID)

	bad := gin.H{
		"shop_id": 1, "title": "x", "stock": 1,
		"begin_time": now.Format(time.RFC3339), "end_time": now.Add(-time.Hour).Format(time.RFC3339),
	}
	status, _ = e.do(t, http.MethodPost, "/api/voucher/seckill", bad, admin)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodGet, fmt.Sprintf("/api/voucher/%d", created.ID), nil, nil)
	require.Equal(t, http.StatusOK, status)

	orderPath := fmt.Sprintf("/api/voucher-order/seckill/%d", created.ID)
	status, _ = e.do(t, http.MethodPost, orderPath, nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	alice := map[string]string{middleware.AuthorizationHeader: e.login(t, "13800000001")}
	bob := map[string]string{middleware.AuthorizationHeader: e.login(t, "13800000002")}

	status, out = e.do(t, http.MethodPost, orderPath, nil, alice)
	require.Equal(t, http.StatusOK, status)
	var order struct {
		OrderID    int64  `json:"order_id"`
		OrderIDStr string `json:"order_id_str"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &order))
	require.Positive(t, order.OrderID)

	status, out = e.do(t, http.MethodPost, orderPath, nil, alice)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "用户已经购买过一次!", out.Msg)

	status, out = e.do(t, http.MethodPost, orderPath, nil, bob)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "库存不足!", out.Msg)

	status, _ = e.do(t, http.MethodPost, "/api/voucher-order/seckill/9999", nil, bob)
	require.Equal(t, http.StatusNotFound, status)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}
