package redis

import "github.com/redis/go-redis/v9"

// 座席キーの値は "hold:{userId}" または "lock:{userId}"
// タグのない値は旧形式のロックとして扱う

// holdScript は仮押さえを取得する
// KEYS[1] = 座席キー, KEYS[2] = user:hold:{userId}, KEYS[3] = user:lock:{userId}
// ARGV[1] = userId, ARGV[2] = TTL(ms), ARGV[3] = 別座席のロックを解放するか ("1"/"0")
// 戻り値 = {取得成否, 自分のロックで何もしなかったか, 解放した仮押さえキー, 解放したロックキー}
var holdScript = redis.NewScript(`
local holdVal = "hold:" .. ARGV[1]
local lockVal = "lock:" .. ARGV[1]

local current = redis.call("GET", KEYS[1])
if current and string.sub(current, 1, 5) ~= "hold:" then
	local owner = current
	if string.sub(current, 1, 5) == "lock:" then
		owner = string.sub(current, 6)
	end
	if owner == ARGV[1] then
		return {1, 1, "", ""}
	end
	return {0, 0, "", ""}
end

local releasedHold = ""
local oldHold = redis.call("GET", KEYS[2])
if oldHold and oldHold ~= KEYS[1] then
	if redis.call("GET", oldHold) == holdVal then
		redis.call("DEL", oldHold)
		releasedHold = oldHold
	end
end

local releasedLock = ""
if ARGV[3] == "1" then
	local oldLock = redis.call("GET", KEYS[3])
	if oldLock and oldLock ~= KEYS[1] then
		if redis.call("GET", oldLock) == lockVal then
			redis.call("DEL", oldLock)
			releasedLock = oldLock
		end
		redis.call("DEL", KEYS[3])
	end
end

redis.call("SET", KEYS[1], holdVal, "PX", ARGV[2])
redis.call("SET", KEYS[2], KEYS[1], "PX", ARGV[2])
return {1, 0, releasedHold, releasedLock}
`)

// lockScript はハードロックを取得する
// 他ユーザーの仮押さえは上書きする（ロックが常に優先）
// KEYS[1] = 座席キー, KEYS[2] = user:lock:{userId}, KEYS[3] = user:hold:{userId}
// ARGV[1] = userId, ARGV[2] = TTL(ms)
// 戻り値 = {取得成否, 解放したロックキー, 解放した仮押さえキー, 上書きした仮押さえの所有者}
var lockScript = redis.NewScript(`
local holdVal = "hold:" .. ARGV[1]
local lockVal = "lock:" .. ARGV[1]

local preempted = ""
local current = redis.call("GET", KEYS[1])
if current then
	if string.sub(current, 1, 5) == "hold:" then
		local holder = string.sub(current, 6)
		if holder ~= ARGV[1] then
			preempted = holder
		end
	else
		local owner = current
		if string.sub(current, 1, 5) == "lock:" then
			owner = string.sub(current, 6)
		end
		if owner ~= ARGV[1] then
			return {0, "", "", ""}
		end
		redis.call("SET", KEYS[1], lockVal, "PX", ARGV[2])
		redis.call("SET", KEYS[2], KEYS[1], "PX", ARGV[2])
		return {1, "", "", ""}
	end
end

local released = ""
local oldLock = redis.call("GET", KEYS[2])
if oldLock and oldLock ~= KEYS[1] then
	if redis.call("GET", oldLock) == lockVal then
		redis.call("DEL", oldLock)
		released = oldLock
	end
end

local releasedHold = ""
local oldHold = redis.call("GET", KEYS[3])
if oldHold then
	if oldHold ~= KEYS[1] and redis.call("GET", oldHold) == holdVal then
		redis.call("DEL", oldHold)
		releasedHold = oldHold
	end
	redis.call("DEL", KEYS[3])
end

redis.call("SET", KEYS[1], lockVal, "PX", ARGV[2])
redis.call("SET", KEYS[2], KEYS[1], "PX", ARGV[2])
return {1, released, releasedHold, preempted}
`)

// releaseScript は所有者確認付きで座席キーを削除する
// 追跡ポインタはこのキーを指している場合のみ削除する
// KEYS[1] = 座席キー, KEYS[2] = 追跡ポインタ
// ARGV[1] = 期待するタグ付き値
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	if redis.call("GET", KEYS[2]) == KEYS[1] then
		redis.call("DEL", KEYS[2])
	end
	return 1
end
return 0
`)
