package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"

	rediskey "seckill/pkg/redis"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Msg    string
	Err    error
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	voucherID := flag.Int("voucher", 1, "seckill voucher id")
	redisAddr := flag.String("redis", "localhost:6379", "redis addr used to seed login tokens")

	// 超卖测试参数：200 个用户并发抢
	nUsers := flag.Int("users", 200, "distinct users")
	firstUser := flag.Int64("first-user", 100000, "first seeded user id")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	ctx := context.Background()
	rdb := rd.NewClient(&rd.Options{Addr: *redisAddr})
	defer rdb.Close()

	// 直接往 Redis 写登录态，跳过验证码流程
	tokens, err := seedTokens(ctx, rdb, *firstUser, *nUsers)
	if err != nil {
		panic(fmt.Sprintf("seed tokens failed: %v", err))
	}
	fmt.Printf("seeded %d login tokens\n", len(tokens))

	client := &http.Client{Timeout: 5 * time.Second}

	// 1) 不超卖测试：不同 user 并发
	fmt.Printf("start oversell test: voucher=%d users=%d concurrency=%d\n", *voucherID, *nUsers, *concurrency)
	results := runBuy(client, *baseURL, *voucherID, tokens, *concurrency)
	printSummary("oversell", results)

	if stock, err := getStock(client, *baseURL, *voucherID); err != nil {
		fmt.Println("stock check err:", err)
	} else {
		fmt.Println("voucher stock (cached view):", stock)
	}

	// 2) 一人一单：同一个 user 并发重复抢
	fmt.Println("\nstart one-per-user test: same user, 50 requests, concurrency 50")
	same := make([]string, 50)
	for i := range same {
		same[i] = tokens[0]
	}
	results2 := runBuy(client, *baseURL, *voucherID, same, 50)
	printSummary("one_per_user", results2)
}

func seedTokens(ctx context.Context, rdb *rd.Client, firstUser int64, n int) ([]string, error) {
	tokens := make([]string, n)
	pipe := rdb.Pipeline()
	for i := 0; i < n; i++ {
		token := strings.ReplaceAll(uuid.NewString(), "-", "")
		key := rediskey.LoginTokenKey + token
		id := firstUser + int64(i)
		pipe.HSet(ctx, key, map[string]any{
			"id":        strconv.FormatInt(id, 10),
			"nick_name": fmt.Sprintf("loadtest_%d", id),
			"icon":      "",
		})
		pipe.Expire(ctx, key, 30*time.Minute)
		tokens[i] = token
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return tokens, nil
}

func runBuy(client *http.Client, baseURL string, voucherID int, tokens []string, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, len(tokens))

	for i, token := range tokens {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, token string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = buyOnce(client, baseURL, voucherID, token)
		}(i, token)
	}

	wg.Wait()
	return results
}

func buyOnce(client *http.Client, baseURL string, voucherID int, token string) Result {
	url := fmt.Sprintf("%s/api/voucher-order/seckill/%d", baseURL, voucherID)
	req, _ := http.NewRequest(http.MethodPost, url, nil)
	req.Header.Set("authorization", token)

	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var out struct {
		Msg string `json:"msg"`
	}
	_ = json.Unmarshal(body, &out)
	return Result{Status: resp.StatusCode, Msg: out.Msg}
}

// printSummary 聚合输出不同状态码、不同原因的分布。
func printSummary(name string, results []Result) {
	count := map[string]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[fmt.Sprintf("%d %s", r.Status, r.Msg)]++
	}
	keys := make([]string, 0, len(count))
	for k := range count {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("[%s] summary:\n", name)
	for _, k := range keys {
		fmt.Printf("  %s -> %d\n", k, count[k])
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// getStock 查询券的缓存视图；订单事件开启时下单后会被失效刷新。
func getStock(client *http.Client, baseURL string, voucherID int) (int64, error) {
	url := fmt.Sprintf("%s/api/voucher/%d", baseURL, voucherID)
	resp, err := client.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Code int `json:"code"`
		Data struct {
			Stock int64 `json:"stock"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}
	return out.Data.Stock, nil
}
