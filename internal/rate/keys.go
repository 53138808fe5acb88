package rate

func (l *Limiter) loginUserKey(username string) string {
	return l.config.KeyPrefix + "al:" + username
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.config.KeyPrefix + "ali:" + ip
}

func (l *Limiter) refreshKey(subject string) string {
	return l.config.KeyPrefix + "ar:" + subject
}
