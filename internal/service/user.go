package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"seckill/internal/model"
	"seckill/pkg/logger"
	rediskey "seckill/pkg/redis"
	"seckill/pkg/validator"
)

const userNickNamePrefix = "user_"

// UserService 手机验证码登录，登录态保存在 Redis 哈希里。
type UserService struct {
	db       *gorm.DB
	rdb      rd.Cmdable
	codeTTL  time.Duration
	tokenTTL time.Duration
	log      *zap.Logger
}

func NewUserService(db *gorm.DB, rdb rd.Cmdable, codeTTL, tokenTTL time.Duration) *UserService {
	return &UserService{
		db:       db,
		rdb:      rdb,
		codeTTL:  codeTTL,
		tokenTTL: tokenTTL,
		log:      logger.WithModule("user"),
	}
}

// SendCode 生成 6 位验证码存入 Redis。没有接短信网关，验证码只打日志。
func (s *UserService) SendCode(ctx context.Context, phone string) (string, error) {
	if validator.IsPhoneInvalid(phone) {
		return "", ErrInvalidPhone
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())
	if err := s.rdb.Set(ctx, rediskey.LoginCodeKey+phone, code, s.codeTTL).Err(); err != nil {
		return "", fmt.Errorf("save login code: %w", err)
	}
	s.log.Debug("login code sent", zap.String("phone", phone), zap.String("code", code))
	return code, nil
}

// Login 校验验证码，不存在的用户自动注册，返回登录 token。
func (s *UserService) Login(ctx context.Context, phone, code string) (string, error) {
	if validator.IsPhoneInvalid(phone) {
		return "", ErrInvalidPhone
	}
	if validator.IsCodeInvalid(code) {
		return "", ErrInvalidCode
	}
	cached, err := s.rdb.Get(ctx, rediskey.LoginCodeKey+phone).Result()
	if errors.Is(err, rd.Nil) || (err == nil && cached != code) {
		return "", ErrInvalidCode
	}
	if err != nil {
		return "", fmt.Errorf("load login code: %w", err)
	}

	user, err := s.findOrCreate(ctx, phone)
	if err != nil {
		return "", err
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	key := rediskey.LoginTokenKey + token
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"id":        strconv.FormatInt(user.ID, 10),
		"nick_name": user.NickName,
		"icon":      user.Icon,
	})
	pipe.Expire(ctx, key, s.tokenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("save login token: %w", err)
	}
	// 验证码只能用一次
	if err := s.rdb.Del(ctx, rediskey.LoginCodeKey+phone).Err(); err != nil {
		s.log.Warn("delete login code failed", zap.String("phone", phone), zap.Error(err))
	}
	return token, nil
}

// LoadToken 读取 token 对应的用户并刷新有效期；token 无效返回 nil, nil。
func (s *UserService) LoadToken(ctx context.Context, token string) (*model.UserDTO, error) {
	if token == "" {
		return nil, nil
	}
	key := rediskey.LoginTokenKey + token
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load login token: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad login token %s: %w", key, err)
	}
	if err := s.rdb.Expire(ctx, key, s.tokenTTL).Err(); err != nil {
		s.log.Warn("refresh login token failed", zap.Error(err))
	}
	return &model.UserDTO{ID: id, NickName: fields["nick_name"], Icon: fields["icon"]}, nil
}

func (s *UserService) findOrCreate(ctx context.Context, phone string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("query user: %w", err)
	}
	user = model.User{
		Phone:    phone,
		NickName: userNickNamePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:10],
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}
