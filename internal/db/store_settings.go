package db

// GetSetting reads a generic key/value configuration entry, used for
// SSO provider configuration and the one-time setup-completed flag.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(s.rebind("SELECT value FROM settings WHERE key = ?"), key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting upserts a generic key/value configuration entry.
func (s *Store) SetSetting(key, value string) error {
	var err error
	if s.IsPostgres() {
		_, err = s.db.Exec(s.rebind("INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value"), key, value)
	} else {
		_, err = s.db.Exec("INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", key, value)
	}
	return err
}
